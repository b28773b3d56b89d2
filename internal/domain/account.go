package domain

import "time"

// Account field names shared by every store backend in partial updates.
// DynamoDB attribute names and MongoDB document keys use the same spelling.
const (
	FieldUsername           = "username"
	FieldEmail              = "email"
	FieldPasswordHash       = "password_hash"
	FieldIsVerified         = "is_verified"
	FieldVerifyCode         = "verify_code"
	FieldVerifyCodeExpiry   = "verify_code_expiry"
	FieldIsAcceptingMessage = "is_accepting_message"
	FieldMessages           = "messages"
	FieldUpdatedAt          = "updated_at"
)

// Account is a registered user and the owner of one inbox.
// Messages are embedded and have no lifecycle outside the account.
type Account struct {
	AccountID          string    `json:"id" dynamodbav:"account_id" bson:"_id"`
	Username           string    `json:"username" dynamodbav:"username" bson:"username"`
	Email              string    `json:"email" dynamodbav:"email" bson:"email"`
	PasswordHash       string    `json:"-" dynamodbav:"password_hash" bson:"password_hash"`
	IsVerified         bool      `json:"isVerified" dynamodbav:"is_verified" bson:"is_verified"`
	VerifyCode         string    `json:"-" dynamodbav:"verify_code" bson:"verify_code"`
	VerifyCodeExpiry   time.Time `json:"-" dynamodbav:"verify_code_expiry" bson:"verify_code_expiry"`
	IsAcceptingMessage bool      `json:"isAcceptingMessage" dynamodbav:"is_accepting_message" bson:"is_accepting_message"`
	Messages           []Message `json:"-" dynamodbav:"messages" bson:"messages"`
	CreatedAt          time.Time `json:"createdAt" dynamodbav:"created_at" bson:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" dynamodbav:"updated_at" bson:"updated_at"`
}

// AccountSummary is the public projection of a verified account.
type AccountSummary struct {
	AccountID string `json:"id" dynamodbav:"account_id" bson:"_id"`
	Username  string `json:"username" dynamodbav:"username" bson:"username"`
}

// CodeValidAt reports whether the stored verification code is still usable at t.
// The expiry instant itself is still valid.
func (a *Account) CodeValidAt(t time.Time) bool {
	return !t.After(a.VerifyCodeExpiry)
}

type SignUpRequest struct {
	Username string `json:"username" validate:"required,min=2,max=20,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type VerifyCodeRequest struct {
	Username string `json:"username" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

type SignInRequest struct {
	// Identifier is either the username or the email of the account.
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}
