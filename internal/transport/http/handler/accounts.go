package handler

import (
	"net/http"

	"github.com/go-mystery-message/internal/application/account"
	"github.com/go-mystery-message/internal/domain"
)

// AccountHandler handles registration, verification, sign-in and the public
// user listing.
type AccountHandler struct {
	svc account.Service
}

func NewAccountHandler(svc account.Service) *AccountHandler { return &AccountHandler{svc: svc} }

func (h *AccountHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.svc.Register(r.Context(), req); err != nil {
		writeServiceError(w, r, err, "Error registering user")
		return
	}
	writeOK(w, http.StatusCreated, "User registered successfully. Please verify your email")
}

func (h *AccountHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Verify(r.Context(), req); err != nil {
		writeServiceError(w, r, err, "Error verifying user")
		return
	}
	writeOK(w, http.StatusOK, "Account verified successfully")
}

func (h *AccountHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req domain.SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.SignIn(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "Error signing in")
		return
	}
	writeJSON(w, http.StatusOK, SignInEnvelope{
		Success:    true,
		Message:    "Signed in",
		Bearer:     res.Bearer,
		User:       res.Account,
		ProfileURL: res.ProfileURL,
	})
}

func (h *AccountHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	available, err := h.svc.CheckUsername(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeServiceError(w, r, err, "Error checking username")
		return
	}
	msg := "Username is unique"
	if !available {
		msg = "Username is already taken"
	}
	writeJSON(w, http.StatusOK, UsernameEnvelope{Success: true, Message: msg, Available: available})
}

func (h *AccountHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListVerified(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch users")
		return
	}
	if users == nil {
		users = []domain.AccountSummary{}
	}
	writeJSON(w, http.StatusOK, UsersEnvelope{Success: true, Message: "Users fetched successfully", Users: users})
}
