package domain

import (
	"sort"
	"time"
)

// Message content bounds enforced on intake.
const (
	MessageMinLength = 10
	MessageMaxLength = 300
)

// Message is an anonymous text item delivered to an Account.
type Message struct {
	MessageID string    `json:"id" dynamodbav:"message_id" bson:"_id"`
	Content   string    `json:"content" dynamodbav:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at" bson:"created_at"`
}

type SendMessageRequest struct {
	Username string `json:"username" validate:"required"`
	Content  string `json:"content"`
}

type AcceptMessagesRequest struct {
	AcceptMessages *bool `json:"acceptMessages" validate:"required"`
}

// SortNewestFirst orders messages by CreatedAt descending. Equal timestamps
// keep their stored order.
func SortNewestFirst(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
}
