package httpapi

import (
	"net/http"
	"strings"
	"time"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	agentID, err := uintParam(r, "agentID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	session, err := s.chat.CreateSession(r.Context(), agentID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	agentID, err := uintParam(r, "agentID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	skip, limit := pagination(r)
	sessions, err := s.chat.SessionsByAgent(r.Context(), agentID, skip, limit)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uintParam(r, "sessionID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if err := s.store.DeleteSession(r.Context(), sessionID); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content       string `json:"content"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
}

type sendMessageResponse struct {
	Message   string `json:"message"`
	SessionID uint   `json:"session_id"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uintParam(r, "sessionID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondValidation(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.respondValidation(w, r, "content is required")
		return
	}

	start := time.Now()
	_, agentMsg, err := s.chat.SendUserMessage(r.Context(), sessionID, req.Content, req.KnowledgeBase)
	if err != nil {
		s.metrics.Completions.WithLabelValues("blocking", "error").Inc()
		s.respondAppError(w, r, err)
		return
	}
	s.metrics.Completions.WithLabelValues("blocking", "ok").Inc()
	s.metrics.ObserveCompletionLatency(time.Since(start))

	s.respondJSON(w, http.StatusOK, sendMessageResponse{
		Message:   agentMsg.Content,
		SessionID: sessionID,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uintParam(r, "sessionID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	messages, err := s.chat.SessionMessages(r.Context(), sessionID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uintParam(r, "sessionID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	summary, err := s.chat.SummarizeSession(r.Context(), sessionID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"summary":    summary,
		"session_id": sessionID,
	})
}
