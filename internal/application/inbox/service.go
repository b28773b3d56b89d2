package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-mystery-message/internal/domain"
	"github.com/go-mystery-message/internal/pkg/id"
)

type Service interface {
	// Send delivers an anonymous message to the account named in req.
	Send(ctx context.Context, req domain.SendMessageRequest) (*domain.Message, error)
	List(ctx context.Context, who domain.Identity) ([]domain.Message, error)
	Acceptance(ctx context.Context, who domain.Identity) (bool, error)
	SetAcceptance(ctx context.Context, who domain.Identity, accept bool) error
	Delete(ctx context.Context, who domain.Identity, messageID string) error
}

type inboxStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	AppendMessage(ctx context.Context, accountID string, m domain.Message) error
	RemoveMessage(ctx context.Context, accountID, messageID string) (bool, error)
	ListMessages(ctx context.Context, accountID string) ([]domain.Message, error)
}

type service struct {
	repo inboxStore
	now  func() time.Time
}

func NewService(repo inboxStore) Service {
	return &service{repo: repo, now: time.Now}
}

// Send checks the acceptance flag before looking at the content, so a
// closed inbox answers Forbidden whatever was sent.
func (s *service) Send(ctx context.Context, req domain.SendMessageRequest) (*domain.Message, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, fmt.Errorf("username is required: %w", domain.ErrBadRequest)
	}
	a, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	if !a.IsAcceptingMessage {
		return nil, fmt.Errorf("user is not accepting messages: %w", domain.ErrForbidden)
	}
	if err := checkContent(req.Content); err != nil {
		return nil, err
	}
	m := domain.Message{
		MessageID: id.New(),
		Content:   req.Content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendMessage(ctx, a.AccountID, m); err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	return &m, nil
}

func (s *service) List(ctx context.Context, who domain.Identity) ([]domain.Message, error) {
	if !who.Valid() {
		return nil, fmt.Errorf("not authenticated: %w", domain.ErrUnauthorized)
	}
	msgs, err := s.repo.ListMessages(ctx, who.AccountID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	return msgs, nil
}

func (s *service) Acceptance(ctx context.Context, who domain.Identity) (bool, error) {
	if !who.Valid() {
		return false, fmt.Errorf("not authenticated: %w", domain.ErrUnauthorized)
	}
	a, err := s.repo.Get(ctx, who.AccountID)
	if err != nil {
		return false, notFoundAs(err, "user not found")
	}
	return a.IsAcceptingMessage, nil
}

func (s *service) SetAcceptance(ctx context.Context, who domain.Identity, accept bool) error {
	if !who.Valid() {
		return fmt.Errorf("not authenticated: %w", domain.ErrUnauthorized)
	}
	err := s.repo.Update(ctx, who.AccountID, map[string]interface{}{domain.FieldIsAcceptingMessage: accept})
	if err != nil {
		return notFoundAs(err, "user not found")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, who domain.Identity, messageID string) error {
	if !who.Valid() {
		return fmt.Errorf("not authenticated: %w", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("message id is required: %w", domain.ErrBadRequest)
	}
	removed, err := s.repo.RemoveMessage(ctx, who.AccountID, messageID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("message not found or already deleted: %w", domain.ErrNotFound)
	}
	return nil
}

func checkContent(content string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	if n < domain.MessageMinLength {
		return fmt.Errorf("content must be at least %d characters: %w", domain.MessageMinLength, domain.ErrBadRequest)
	}
	if n > domain.MessageMaxLength {
		return fmt.Errorf("content must be no longer than %d characters: %w", domain.MessageMaxLength, domain.ErrBadRequest)
	}
	return nil
}

// notFoundAs rewrites store not-found errors with a caller-facing message and
// leaves every other error untouched.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return err
}
