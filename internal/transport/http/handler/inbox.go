package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-mystery-message/internal/application/inbox"
	"github.com/go-mystery-message/internal/domain"
	"github.com/go-mystery-message/internal/transport/http/middleware"
)

// InboxHandler handles anonymous intake and the owner's inbox endpoints.
type InboxHandler struct {
	svc inbox.Service
}

func NewInboxHandler(svc inbox.Service) *InboxHandler { return &InboxHandler{svc: svc} }

func (h *InboxHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.svc.Send(r.Context(), req); err != nil {
		writeServiceError(w, r, err, "Internal server error")
		return
	}
	writeOK(w, http.StatusOK, "Message sent successfully")
}

func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not Authenticated")
		return
	}
	msgs, err := h.svc.List(r.Context(), who)
	if err != nil {
		writeServiceError(w, r, err, "Internal server error")
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesEnvelope{Success: true, Message: "Messages fetched successfully", Messages: msgs})
}

func (h *InboxHandler) GetAcceptance(w http.ResponseWriter, r *http.Request) {
	who, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not Authenticated")
		return
	}
	on, err := h.svc.Acceptance(r.Context(), who)
	if err != nil {
		writeServiceError(w, r, err, "Error in getting message accepting status")
		return
	}
	writeJSON(w, http.StatusOK, AcceptanceEnvelope{Success: true, Message: "Message acceptance status fetched", IsAcceptingMessage: on})
}

func (h *InboxHandler) SetAcceptance(w http.ResponseWriter, r *http.Request) {
	who, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not Authenticated")
		return
	}
	var req domain.AcceptMessagesRequest
	if err := decodeJSON(r, &req); err != nil || req.AcceptMessages == nil {
		writeError(w, http.StatusBadRequest, "acceptMessages must be a boolean")
		return
	}
	if err := h.svc.SetAcceptance(r.Context(), who, *req.AcceptMessages); err != nil {
		writeServiceError(w, r, err, "Failed to update user status to accept messages")
		return
	}
	writeJSON(w, http.StatusCreated, AcceptanceEnvelope{
		Success:            true,
		Message:            "Message acceptance status updated successfully",
		IsAcceptingMessage: *req.AcceptMessages,
	})
}

func (h *InboxHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not Authenticated")
		return
	}
	if err := h.svc.Delete(r.Context(), who, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "Error deleting message")
		return
	}
	writeOK(w, http.StatusOK, "Message deleted")
}
