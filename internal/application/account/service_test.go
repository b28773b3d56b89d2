package account

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-mystery-message/internal/domain"
	"github.com/go-mystery-message/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockAccountStore struct{ mock.Mock }

func (m *mockAccountStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := m.Called(ctx, username)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) Create(ctx context.Context, a *domain.Account) error {
	return m.Called(ctx, a).Error(0)
}
func (m *mockAccountStore) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	return m.Called(ctx, accountID, updates).Error(0)
}
func (m *mockAccountStore) Delete(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}
func (m *mockAccountStore) ListVerified(ctx context.Context) ([]domain.AccountSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.AccountSummary), args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(accountID, username string) (string, error) {
	args := m.Called(accountID, username)
	return args.String(0), args.Error(1)
}

// captureMailer records the last body so tests can read the mailed code.
type captureMailer struct {
	to, body string
}

func (c *captureMailer) SendEmail(to, _, body string) error {
	c.to, c.body = to, body
	return nil
}

var codeRe = regexp.MustCompile(`\b(\d{6})\b`)

func (c *captureMailer) code(t *testing.T) string {
	t.Helper()
	m := codeRe.FindStringSubmatch(c.body)
	require.Len(t, m, 2, "no code in %q", c.body)
	return m[1]
}

// --- helpers ---

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newService(store accountStore, ml mailer, signer tokenSigner, now func() time.Time) Service {
	return NewService(ServiceDeps{
		AccountRepo: store,
		Mailer:      ml,
		Signer:      signer,
		CodeTTL:     time.Hour,
		BaseURL:     "https://inbox.example.com",
		Now:         now,
	})
}

func signUp() domain.SignUpRequest {
	return domain.SignUpRequest{Username: "alice", Email: "a@x.com", Password: "pw1234"}
}

func hashOf(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

// --- Register ---

func TestRegister_InvalidInput(t *testing.T) {
	svc := newService(&mockAccountStore{}, nil, nil, nil)
	_, err := svc.Register(context.Background(), domain.SignUpRequest{Username: "a", Email: "bad", Password: "1"})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestRegister_VerifiedUsernameConflict(t *testing.T) {
	us := &mockAccountStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{AccountID: "a1", IsVerified: true}, nil)

	svc := newService(us, nil, nil, nil)
	_, err := svc.Register(context.Background(), signUp())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	us.AssertExpectations(t)
}

func TestRegister_VerifiedEmailConflict(t *testing.T) {
	us := &mockAccountStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.Account{AccountID: "a9", IsVerified: true}, nil)

	svc := newService(us, nil, nil, nil)
	_, err := svc.Register(context.Background(), signUp())

	assert.True(t, errors.Is(err, domain.ErrConflict))
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_NewAccount(t *testing.T) {
	us := &mockAccountStore{}
	ml := &mockMailer{}
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	us.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).Return(nil)
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(nil)

	svc := newService(us, ml, nil, func() time.Time { return fixedNow })
	a, err := svc.Register(context.Background(), signUp())

	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)
	assert.False(t, a.IsVerified)
	assert.True(t, a.IsAcceptingMessage)
	assert.Empty(t, a.Messages)
	assert.Len(t, a.VerifyCode, 6)
	assert.Equal(t, fixedNow.Add(time.Hour), a.VerifyCodeExpiry)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("pw1234")))
	us.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestRegister_UnverifiedEmailIsOverwritten(t *testing.T) {
	us := &mockAccountStore{}
	ml := &mockMailer{}
	existing := &domain.Account{AccountID: "a1", Username: "alice", Email: "a@x.com", VerifyCode: "000000", PasswordHash: "old"}
	us.On("GetByUsername", mock.Anything, "alice").Return(existing, nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(existing, nil)
	us.On("Update", mock.Anything, "a1", mock.MatchedBy(func(u map[string]interface{}) bool {
		code, _ := u[domain.FieldVerifyCode].(string)
		hash, _ := u[domain.FieldPasswordHash].(string)
		_, renamed := u[domain.FieldUsername]
		return len(code) == 6 && hash != "old" && !renamed
	})).Return(nil)
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(nil)

	svc := newService(us, ml, nil, nil)
	a, err := svc.Register(context.Background(), signUp())

	require.NoError(t, err)
	assert.Equal(t, "a1", a.AccountID)
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	us.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	us.AssertExpectations(t)
}

func TestRegister_EmailPendingUnderOtherUsername(t *testing.T) {
	us := &mockAccountStore{}
	existing := &domain.Account{AccountID: "a1", Username: "alice", Email: "a@x.com", VerifyCodeExpiry: fixedNow.Add(time.Hour)}
	us.On("GetByUsername", mock.Anything, "mallory").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(existing, nil)

	svc := newService(us, nil, nil, func() time.Time { return fixedNow })
	_, err := svc.Register(context.Background(), domain.SignUpRequest{Username: "mallory", Email: "a@x.com", Password: "pw1234"})

	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_PendingUsernameWithLiveCodeConflicts(t *testing.T) {
	us := &mockAccountStore{}
	holder := &domain.Account{AccountID: "holder", Username: "alice", Email: "old@x.com", VerifyCodeExpiry: fixedNow.Add(time.Minute)}
	us.On("GetByUsername", mock.Anything, "alice").Return(holder, nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(us, nil, nil, func() time.Time { return fixedNow })
	_, err := svc.Register(context.Background(), signUp())

	assert.True(t, errors.Is(err, domain.ErrConflict))
	us.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_PendingUsernameWithExpiredCodeReleased(t *testing.T) {
	us := &mockAccountStore{}
	ml := &mockMailer{}
	holder := &domain.Account{AccountID: "holder", Username: "alice", Email: "old@x.com", VerifyCodeExpiry: fixedNow.Add(-time.Second)}
	us.On("GetByUsername", mock.Anything, "alice").Return(holder, nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	us.On("Delete", mock.Anything, "holder").Return(nil)
	us.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).Return(nil)
	ml.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(nil)

	svc := newService(us, ml, nil, func() time.Time { return fixedNow })
	a, err := svc.Register(context.Background(), signUp())

	require.NoError(t, err)
	assert.NotEqual(t, "holder", a.AccountID)
	us.AssertExpectations(t)
}

func TestRegister_ReleaseSkippedWhenHashingFails(t *testing.T) {
	us := &mockAccountStore{}
	holder := &domain.Account{AccountID: "holder", Username: "alice", Email: "old@x.com", VerifyCodeExpiry: fixedNow.Add(-time.Hour)}
	us.On("GetByUsername", mock.Anything, "alice").Return(holder, nil)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)

	// bcrypt rejects passwords over 72 bytes; validation caps at 72 runes.
	req := domain.SignUpRequest{Username: "alice", Email: "a@x.com", Password: strings.Repeat("é", 40)}
	svc := newService(us, nil, nil, func() time.Time { return fixedNow })
	_, err := svc.Register(context.Background(), req)

	require.Error(t, err)
	us.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRegister_MailFailureLeavesAccountPersisted(t *testing.T) {
	us := &mockAccountStore{}
	ml := &mockMailer{}
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	us.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).Return(nil)
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	svc := newService(us, ml, nil, nil)
	_, err := svc.Register(context.Background(), signUp())

	require.Error(t, err)
	assert.ErrorContains(t, err, "send verification email")
	assert.False(t, errors.Is(err, domain.ErrBadRequest))
	us.AssertCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_StoreErrorPropagates(t *testing.T) {
	us := &mockAccountStore{}
	storeErr := errors.New("dynamo error")
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, storeErr)

	svc := newService(us, nil, nil, nil)
	_, err := svc.Register(context.Background(), signUp())

	assert.Equal(t, storeErr, err)
}

// --- Verify ---

func pendingAccount() *domain.Account {
	return &domain.Account{
		AccountID:        "a1",
		Username:         "alice",
		VerifyCode:       "123456",
		VerifyCodeExpiry: fixedNow.Add(time.Hour),
	}
}

func TestVerify_WrongCode(t *testing.T) {
	us := &mockAccountStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(pendingAccount(), nil)

	svc := newService(us, nil, nil, func() time.Time { return fixedNow })
	err := svc.Verify(context.Background(), domain.VerifyCodeRequest{Username: "alice", Code: "654321"})

	assert.True(t, errors.Is(err, domain.ErrInvalidCode))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_AtExpiryStillValid(t *testing.T) {
	us := &mockAccountStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(pendingAccount(), nil)
	us.On("Update", mock.Anything, "a1", map[string]interface{}{domain.FieldIsVerified: true}).Return(nil)

	svc := newService(us, nil, nil, func() time.Time { return fixedNow.Add(time.Hour) })
	err := svc.Verify(context.Background(), domain.VerifyCodeRequest{Username: "alice", Code: "123456"})

	require.NoError(t, err)
	us.AssertExpectations(t)
}

func TestVerify_OneSecondPastExpiry(t *testing.T) {
	us := &mockAccountStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(pendingAccount(), nil)

	svc := newService(us, nil, nil, func() time.Time { return fixedNow.Add(time.Hour + time.Second) })
	err := svc.Verify(context.Background(), domain.VerifyCodeRequest{Username: "alice", Code: "123456"})

	assert.True(t, errors.Is(err, domain.ErrCodeExpired))
}

func TestVerify_UnknownUser(t *testing.T) {
	us := &mockAccountStore{}
	us.On("GetByUsername", mock.Anything, "bob").Return(nil, domain.ErrNotFound)

	svc := newService(us, nil, nil, nil)
	err := svc.Verify(context.Background(), domain.VerifyCodeRequest{Username: "bob", Code: "123456"})

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerify_AlreadyVerified(t *testing.T) {
	us := &mockAccountStore{}
	a := pendingAccount()
	a.IsVerified = true
	us.On("GetByUsername", mock.Anything, "alice").Return(a, nil)

	svc := newService(us, nil, nil, nil)
	err := svc.Verify(context.Background(), domain.VerifyCodeRequest{Username: "alice", Code: "123456"})

	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- Scenarios against a real store ---

func TestScenario_RegisterThenVerify(t *testing.T) {
	store := memory.NewAccountRepo()
	ml := &captureMailer{}
	svc := newService(store, ml, nil, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, signUp())
	require.NoError(t, err)
	code := ml.code(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = svc.Verify(ctx, domain.VerifyCodeRequest{Username: "alice", Code: wrong})
	assert.True(t, errors.Is(err, domain.ErrInvalidCode))

	require.NoError(t, svc.Verify(ctx, domain.VerifyCodeRequest{Username: "alice", Code: code}))
	a, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, a.IsVerified)

	// The verified username is now reserved for every email.
	_, err = svc.Register(ctx, domain.SignUpRequest{Username: "alice", Email: "other@x.com", Password: "pw1234"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestScenario_UnverifiedReRegistrationOverwritesCode(t *testing.T) {
	store := memory.NewAccountRepo()
	ml := &captureMailer{}
	now := fixedNow
	svc := newService(store, ml, nil, func() time.Time { return now })
	ctx := context.Background()

	first, err := svc.Register(ctx, signUp())
	require.NoError(t, err)
	firstHash := first.PasswordHash

	second, err := svc.Register(ctx, domain.SignUpRequest{Username: "alice", Email: "a@x.com", Password: "newpass"})
	require.NoError(t, err)
	assert.Equal(t, first.AccountID, second.AccountID)

	stored, err := store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	assert.NotEqual(t, firstHash, stored.PasswordHash)
	assert.Equal(t, ml.code(t), stored.VerifyCode)
	assert.False(t, stored.IsVerified)

	// Same email under another name does not rename the pending account.
	_, err = svc.Register(ctx, domain.SignUpRequest{Username: "mallory", Email: "a@x.com", Password: "pw1234"})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	stored, err = store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	_, err = store.GetByUsername(ctx, "mallory")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, svc.Verify(ctx, domain.VerifyCodeRequest{Username: "alice", Code: ml.code(t)}))
}

func TestScenario_PendingUsernameHeldUntilCodeExpires(t *testing.T) {
	store := memory.NewAccountRepo()
	ml := &captureMailer{}
	now := fixedNow
	svc := newService(store, ml, nil, func() time.Time { return now })
	ctx := context.Background()

	_, err := svc.Register(ctx, signUp())
	require.NoError(t, err)
	aliceCode := ml.code(t)

	// Another email cannot take the name while alice's code is live.
	_, err = svc.Register(ctx, domain.SignUpRequest{Username: "alice", Email: "evil@x.com", Password: "pw1234"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	free, err := svc.CheckUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, free)

	// alice can still verify with her mailed code.
	now = fixedNow.Add(30 * time.Minute)
	require.NoError(t, svc.Verify(ctx, domain.VerifyCodeRequest{Username: "alice", Code: aliceCode}))

	// A different pending holder gives the name up once its code has expired.
	_, err = svc.Register(ctx, domain.SignUpRequest{Username: "bob", Email: "b@x.com", Password: "pw1234"})
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	free, err = svc.CheckUsername(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, free)
	_, err = svc.Register(ctx, domain.SignUpRequest{Username: "bob", Email: "bob2@x.com", Password: "pw1234"})
	require.NoError(t, err)
	_, err = store.GetByEmail(ctx, "b@x.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	owner, err := store.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob2@x.com", owner.Email)
}

// --- SignIn ---

func TestSignIn_ByEmail(t *testing.T) {
	us := &mockAccountStore{}
	sg := &mockSigner{}
	a := &domain.Account{AccountID: "a1", Username: "alice", Email: "a@x.com", IsVerified: true, PasswordHash: hashOf(t, "pw1234")}
	us.On("GetByUsername", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(a, nil)
	sg.On("Sign", "a1", "alice").Return("tok", nil)

	svc := newService(us, nil, sg, nil)
	res, err := svc.SignIn(context.Background(), domain.SignInRequest{Identifier: "a@x.com", Password: "pw1234"})

	require.NoError(t, err)
	assert.Equal(t, "tok", res.Bearer)
	assert.Equal(t, "https://inbox.example.com/u/alice", res.ProfileURL)
}

func TestSignIn_Unverified(t *testing.T) {
	us := &mockAccountStore{}
	a := &domain.Account{AccountID: "a1", Username: "alice", PasswordHash: hashOf(t, "pw1234")}
	us.On("GetByUsername", mock.Anything, "alice").Return(a, nil)

	svc := newService(us, nil, &mockSigner{}, nil)
	_, err := svc.SignIn(context.Background(), domain.SignInRequest{Identifier: "alice", Password: "pw1234"})

	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.ErrorContains(t, err, "verify your account")
}

func TestSignIn_WrongPassword(t *testing.T) {
	us := &mockAccountStore{}
	a := &domain.Account{AccountID: "a1", Username: "alice", IsVerified: true, PasswordHash: hashOf(t, "pw1234")}
	us.On("GetByUsername", mock.Anything, "alice").Return(a, nil)

	svc := newService(us, nil, &mockSigner{}, nil)
	_, err := svc.SignIn(context.Background(), domain.SignInRequest{Identifier: "alice", Password: "nope"})

	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

// --- CheckUsername / ListVerified ---

func TestCheckUsername(t *testing.T) {
	us := &mockAccountStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(&domain.Account{IsVerified: true}, nil)
	us.On("GetByUsername", mock.Anything, "bob").Return(&domain.Account{IsVerified: false}, nil)
	us.On("GetByUsername", mock.Anything, "carol").Return(nil, domain.ErrNotFound)
	svc := newService(us, nil, nil, nil)
	ctx := context.Background()

	free, err := svc.CheckUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, free)

	free, err = svc.CheckUsername(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, free)

	free, err = svc.CheckUsername(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, free)

	_, err = svc.CheckUsername(ctx, "no spaces")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestListVerified_Delegates(t *testing.T) {
	us := &mockAccountStore{}
	want := []domain.AccountSummary{{AccountID: "a1", Username: "alice"}}
	us.On("ListVerified", mock.Anything).Return(want, nil)

	got, err := newService(us, nil, nil, nil).ListVerified(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
}
