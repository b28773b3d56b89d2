package handler

import (
	"net/http"

	"github.com/go-mystery-message/internal/application/suggestion"
)

type SuggestionHandler struct {
	svc suggestion.Service
}

func NewSuggestionHandler(svc suggestion.Service) *SuggestionHandler {
	return &SuggestionHandler{svc: svc}
}

func (h *SuggestionHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Suggest(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, SuggestionsEnvelope{
		Success:     true,
		Message:     "Messages suggested successfully",
		Messages:    res.Raw,
		Suggestions: res.Suggestions,
	})
}
