package http

import (
	"context"

	"github.com/go-mystery-message/internal/domain"
)

// AccountRepository is the store surface the router requires. The DynamoDB,
// MongoDB and in-memory backends all satisfy it.
type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	Delete(ctx context.Context, accountID string) error
	ListVerified(ctx context.Context) ([]domain.AccountSummary, error)
	AppendMessage(ctx context.Context, accountID string, m domain.Message) error
	RemoveMessage(ctx context.Context, accountID, messageID string) (bool, error)
	ListMessages(ctx context.Context, accountID string) ([]domain.Message, error)
}

// TextGenerator produces free text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
