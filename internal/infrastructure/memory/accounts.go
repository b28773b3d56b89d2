// Package memory is an in-process account store. It backs STORE_DRIVER=memory
// for local development and gives tests a store with real semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-mystery-message/internal/domain"
)

// AccountRepo keeps accounts in a map guarded by a single mutex. Every
// mutation holds the write lock for the whole document, so message appends
// are atomic per account just like a single-document write in a real store.
type AccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

func NewAccountRepo() *AccountRepo {
	return &AccountRepo{accounts: make(map[string]*domain.Account)}
}

func (r *AccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.AccountID]; ok {
		return fmt.Errorf("account %s already exists: %w", a.AccountID, domain.ErrConflict)
	}
	for _, existing := range r.accounts {
		if existing.Username == a.Username || existing.Email == a.Email {
			return fmt.Errorf("username or email already stored: %w", domain.ErrConflict)
		}
	}
	r.accounts[a.AccountID] = clone(a)
	return nil
}

func (r *AccountRepo) Get(_ context.Context, accountID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return clone(a), nil
}

func (r *AccountRepo) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Username == username })
}

func (r *AccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.Email == email })
}

func (r *AccountRepo) Update(_ context.Context, accountID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	next := clone(a)
	for k, v := range updates {
		if err := apply(next, k, v); err != nil {
			return err
		}
	}
	next.UpdatedAt = time.Now().UTC()
	r.accounts[accountID] = next
	return nil
}

func (r *AccountRepo) Delete(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, accountID)
	return nil
}

func (r *AccountRepo) ListVerified(_ context.Context) ([]domain.AccountSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.AccountSummary{}
	for _, a := range r.accounts {
		if a.IsVerified {
			out = append(out, domain.AccountSummary{AccountID: a.AccountID, Username: a.Username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (r *AccountRepo) AppendMessage(_ context.Context, accountID string, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	a.Messages = append(a.Messages, m)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *AccountRepo) RemoveMessage(_ context.Context, accountID, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return false, nil
	}
	for i, m := range a.Messages {
		if m.MessageID == messageID {
			a.Messages = append(a.Messages[:i:i], a.Messages[i+1:]...)
			a.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (r *AccountRepo) ListMessages(_ context.Context, accountID string) ([]domain.Message, error) {
	r.mu.RLock()
	a, ok := r.accounts[accountID]
	if !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	msgs := make([]domain.Message, len(a.Messages))
	copy(msgs, a.Messages)
	r.mu.RUnlock()

	domain.SortNewestFirst(msgs)
	return msgs, nil
}

func (r *AccountRepo) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
}

func apply(a *domain.Account, field string, v interface{}) error {
	var ok bool
	switch field {
	case domain.FieldUsername:
		a.Username, ok = v.(string)
	case domain.FieldEmail:
		a.Email, ok = v.(string)
	case domain.FieldPasswordHash:
		a.PasswordHash, ok = v.(string)
	case domain.FieldVerifyCode:
		a.VerifyCode, ok = v.(string)
	case domain.FieldVerifyCodeExpiry:
		a.VerifyCodeExpiry, ok = v.(time.Time)
	case domain.FieldIsVerified:
		a.IsVerified, ok = v.(bool)
	case domain.FieldIsAcceptingMessage:
		a.IsAcceptingMessage, ok = v.(bool)
	default:
		return fmt.Errorf("unsupported field %q", field)
	}
	if !ok {
		return fmt.Errorf("field %q: unexpected type %T", field, v)
	}
	return nil
}

func clone(a *domain.Account) *domain.Account {
	c := *a
	c.Messages = make([]domain.Message, len(a.Messages))
	copy(c.Messages, a.Messages)
	return &c
}
