package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-mystery-message/internal/domain"
)

// Envelope is the generic response wrapper shared by every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SignInEnvelope wraps sign-in responses.
type SignInEnvelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Bearer     string          `json:"Bearer"`
	User       *domain.Account `json:"user"`
	ProfileURL string          `json:"profileUrl"`
}

// UsernameEnvelope wraps username availability checks.
type UsernameEnvelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Available bool   `json:"available"`
}

// AcceptanceEnvelope wraps reads of the acceptance flag.
type AcceptanceEnvelope struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	IsAcceptingMessage bool   `json:"isAcceptingMessage"`
}

// MessagesEnvelope wraps an inbox listing.
type MessagesEnvelope struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Messages []domain.Message `json:"messages"`
}

// UsersEnvelope wraps the public listing of verified accounts.
type UsersEnvelope struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Users   []domain.AccountSummary `json:"users"`
}

// SuggestionsEnvelope carries the generated text as produced and split.
type SuggestionsEnvelope struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	Messages    string   `json:"messages"`
	Suggestions []string `json:"suggestions"`
}

var sentinels = []error{
	domain.ErrNotFound,
	domain.ErrConflict,
	domain.ErrUnauthorized,
	domain.ErrForbidden,
	domain.ErrBadRequest,
	domain.ErrInvalidCode,
	domain.ErrCodeExpired,
	domain.ErrUpstream,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Success: true, Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Envelope{Success: false, Message: msg})
}

// writeServiceError maps a service error onto the response. Internal failures
// are logged and answered with fallback so store details never reach clients.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, publicMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrCodeExpired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage drops the trailing sentinel text added by %w wrapping.
func publicMessage(err error) string {
	msg := err.Error()
	for _, s := range sentinels {
		if errors.Is(err, s) {
			msg = strings.TrimSuffix(msg, ": "+s.Error())
		}
	}
	return msg
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
