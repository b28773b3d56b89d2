package domain

// Identity is the authenticated caller resolved once from the bearer token.
// Services receive it by parameter and scope every inbox operation to AccountID.
type Identity struct {
	AccountID string
	Username  string
}

func (i Identity) Valid() bool {
	return i.AccountID != "" && i.Username != ""
}
