package dynamo

import "github.com/go-mystery-message/internal/domain"

// Attribute names and GSI names of the accounts table.
const (
	attrAccountID = "account_id"
	attrMessageID = "message_id"
	fieldMessages = domain.FieldMessages

	indexUsername = "username-index"
	indexEmail    = "email-index"
)

// maxRemoveAttempts bounds the read-then-conditional-remove loop when a
// concurrent write shifts the messages list between the two calls.
const maxRemoveAttempts = 3
