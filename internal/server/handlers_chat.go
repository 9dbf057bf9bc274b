package server

import (
	"errors"
	"net/http"

	"chatbuddy/internal/app"
	"chatbuddy/pkg/domain"
)

type newChatRequest struct {
	Message string `json:"message"`
}

type conversationResponse struct {
	Chats []domain.Message `json:"chats"`
}

type chatsResponse struct {
	Message string           `json:"message"`
	Chats   []domain.Message `json:"chats"`
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	var req newChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid JSON body"})
		return
	}
	chats, err := s.app.Converse(r.Context(), id, req.Message)
	if err != nil {
		switch {
		case writeValidationError(w, err):
		case errors.Is(err, app.ErrUserNotRegistered):
			s.audit(r, "ownership", "user_missing")
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "User not registered or Token malfunctioned"})
		case errors.Is(err, app.ErrPermissionDenied):
			s.writeOwnershipError(w, r, err)
		default:
			// Provider and persistence failures share one answer; the cause is logged.
			logger(r).Error("converse failed", "err", err, "upstream", errors.Is(err, app.ErrCompletionFailed))
			writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Something went wrong. Please try again."})
		}
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Chats: chats})
}

func (s *Server) handleAllChats(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	chats, err := s.app.Chats(r.Context(), id)
	if err != nil {
		if !s.writeOwnershipError(w, r, err) {
			s.writeUnexpected(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, chatsResponse{Message: "OK", Chats: chats})
}

func (s *Server) handleDeleteChats(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	if err := s.app.DeleteChats(r.Context(), id); err != nil {
		if !s.writeOwnershipError(w, r, err) {
			s.writeUnexpected(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
}
