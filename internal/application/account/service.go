package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-mystery-message/internal/domain"
	"github.com/go-mystery-message/internal/pkg/id"
	pkgtoken "github.com/go-mystery-message/internal/pkg/token"
	"github.com/go-mystery-message/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const defaultCodeTTL = time.Hour

type SignInResult struct {
	Bearer     string
	Account    *domain.Account
	ProfileURL string
}

type Service interface {
	Register(ctx context.Context, req domain.SignUpRequest) (*domain.Account, error)
	Verify(ctx context.Context, req domain.VerifyCodeRequest) error
	SignIn(ctx context.Context, req domain.SignInRequest) (*SignInResult, error)
	// CheckUsername reports whether username is free to be claimed by a new
	// sign-up: unused, or held by a pending account whose code has expired.
	CheckUsername(ctx context.Context, username string) (bool, error)
	ListVerified(ctx context.Context) ([]domain.AccountSummary, error)
}

type accountStore interface {
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	Delete(ctx context.Context, accountID string) error
	ListVerified(ctx context.Context) ([]domain.AccountSummary, error)
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type tokenSigner interface {
	Sign(accountID, username string) (string, error)
}

type service struct {
	repo    accountStore
	mailer  mailer
	signer  tokenSigner
	codeTTL time.Duration
	baseURL string
	now     func() time.Time
}

type ServiceDeps struct {
	AccountRepo accountStore
	Mailer      mailer
	Signer      tokenSigner
	CodeTTL     time.Duration
	BaseURL     string
	// Now defaults to time.Now; tests pin it to check expiry boundaries.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		repo:    deps.AccountRepo,
		mailer:  deps.Mailer,
		signer:  deps.Signer,
		codeTTL: deps.CodeTTL,
		baseURL: deps.BaseURL,
		now:     deps.Now,
	}
	if s.codeTTL <= 0 {
		s.codeTTL = defaultCodeTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register creates an unverified account, or refreshes the credential and code
// of an unverified account that already owns the email, then mails the code.
// A mail failure is returned after the account has been written.
func (s *service) Register(ctx context.Context, req domain.SignUpRequest) (*domain.Account, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	now := s.now().UTC()

	byUsername, err := s.lookup(ctx, s.repo.GetByUsername, req.Username)
	if err != nil {
		return nil, err
	}
	if byUsername != nil && byUsername.IsVerified {
		return nil, fmt.Errorf("username is already taken: %w", domain.ErrConflict)
	}
	byEmail, err := s.lookup(ctx, s.repo.GetByEmail, req.Email)
	if err != nil {
		return nil, err
	}
	if byEmail != nil && byEmail.IsVerified {
		return nil, fmt.Errorf("an account already exists with this email: %w", domain.ErrConflict)
	}
	// Usernames never change after creation.
	if byEmail != nil && byEmail.Username != req.Username {
		return nil, fmt.Errorf("this email is pending verification under another username: %w", domain.ErrBadRequest)
	}

	// Another pending account holds the username. It keeps the name until its
	// code expires.
	var stale *domain.Account
	if byUsername != nil && byEmail == nil {
		if byUsername.CodeValidAt(now) {
			return nil, fmt.Errorf("username is already taken: %w", domain.ErrConflict)
		}
		stale = byUsername
	}

	code, err := pkgtoken.NewVerificationCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	expiry := now.Add(s.codeTTL)

	var acct *domain.Account
	if byEmail != nil {
		err = s.repo.Update(ctx, byEmail.AccountID, map[string]interface{}{
			domain.FieldPasswordHash:     string(hash),
			domain.FieldVerifyCode:       code,
			domain.FieldVerifyCodeExpiry: expiry,
		})
		if err != nil {
			return nil, err
		}
		acct = byEmail
		acct.PasswordHash = string(hash)
		acct.VerifyCode = code
		acct.VerifyCodeExpiry = expiry
	} else {
		if stale != nil {
			if err := s.repo.Delete(ctx, stale.AccountID); err != nil {
				return nil, err
			}
			slog.Info("released expired username reservation", "username", req.Username, "account_id", stale.AccountID)
		}
		acct = &domain.Account{
			AccountID:          id.New(),
			Username:           req.Username,
			Email:              req.Email,
			PasswordHash:       string(hash),
			VerifyCode:         code,
			VerifyCodeExpiry:   expiry,
			IsAcceptingMessage: true,
			Messages:           []domain.Message{},
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.Create(ctx, acct); err != nil {
			return nil, err
		}
	}

	subject, body := verificationEmail(acct.Username, code, s.codeTTL)
	if err := s.mailer.SendEmail(acct.Email, subject, body); err != nil {
		slog.Error("failed to send verification email", "account_id", acct.AccountID, "err", err)
		return nil, fmt.Errorf("send verification email: %w", err)
	}
	return acct, nil
}

func (s *service) Verify(ctx context.Context, req domain.VerifyCodeRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	a, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return err
	}
	if a.IsVerified {
		return fmt.Errorf("account is already verified: %w", domain.ErrBadRequest)
	}
	if subtle.ConstantTimeCompare([]byte(a.VerifyCode), []byte(req.Code)) != 1 {
		return fmt.Errorf("incorrect verification code: %w", domain.ErrInvalidCode)
	}
	if !a.CodeValidAt(s.now()) {
		return fmt.Errorf("verification code has expired, please sign up again to get a new code: %w", domain.ErrCodeExpired)
	}
	return s.repo.Update(ctx, a.AccountID, map[string]interface{}{domain.FieldIsVerified: true})
}

func (s *service) SignIn(ctx context.Context, req domain.SignInRequest) (*SignInResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	a, err := s.repo.GetByUsername(ctx, req.Identifier)
	if errors.Is(err, domain.ErrNotFound) {
		a, err = s.repo.GetByEmail(ctx, req.Identifier)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if !a.IsVerified {
		return nil, fmt.Errorf("please verify your account before login: %w", domain.ErrUnauthorized)
	}
	bearer, err := s.signer.Sign(a.AccountID, a.Username)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Bearer: bearer, Account: a, ProfileURL: s.profileURL(a.Username)}, nil
}

func (s *service) CheckUsername(ctx context.Context, username string) (bool, error) {
	if err := validate.Var(username, "required,min=2,max=20,username"); err != nil {
		return false, fmt.Errorf("username must be 2-20 letters, digits or underscores: %w", domain.ErrBadRequest)
	}
	a, err := s.lookup(ctx, s.repo.GetByUsername, username)
	if err != nil {
		return false, err
	}
	return a == nil || (!a.IsVerified && !a.CodeValidAt(s.now())), nil
}

func (s *service) ListVerified(ctx context.Context) ([]domain.AccountSummary, error) {
	return s.repo.ListVerified(ctx)
}

// lookup turns ErrNotFound into a nil account so callers only see real failures.
func (s *service) lookup(ctx context.Context, get func(context.Context, string) (*domain.Account, error), key string) (*domain.Account, error) {
	a, err := get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (s *service) profileURL(username string) string {
	return fmt.Sprintf("%s/u/%s", s.baseURL, url.PathEscape(username))
}

func verificationEmail(username, code string, ttl time.Duration) (subject, body string) {
	subject = "Mystery Message | Verification code"
	body = fmt.Sprintf(
		"Hello %s,\n\nThank you for registering. Use the following verification code to complete your registration:\n\n    %s\n\nThe code expires in %d minutes. If you did not request this code, please ignore this email.\n",
		username, code, int(ttl.Minutes()),
	)
	return subject, body
}
