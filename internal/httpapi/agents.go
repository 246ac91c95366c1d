package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
)

type createAgentRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	AgentType     string            `json:"agent_type"`
	IsActive      *bool             `json:"is_active"`
	Configuration store.AgentConfig `json:"configuration"`
	Capabilities  store.Document    `json:"capabilities"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondValidation(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondValidation(w, r, "name is required")
		return
	}
	if strings.TrimSpace(req.AgentType) == "" {
		s.respondValidation(w, r, "agent_type is required")
		return
	}

	agent := &store.Agent{
		Name:          req.Name,
		Description:   req.Description,
		AgentType:     req.AgentType,
		IsActive:      true,
		Configuration: req.Configuration,
		Capabilities:  req.Capabilities,
	}
	if req.IsActive != nil {
		agent.IsActive = *req.IsActive
	}

	if err := s.store.CreateAgent(r.Context(), agent); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r)
	agents, err := s.store.Agents(r.Context(), skip, limit)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, agents)
}

func (s *Server) handleListActiveAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ActiveAgents(r.Context())
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := uintParam(r, "agentID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	agent, err := s.store.Agent(r.Context(), agentID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := uintParam(r, "agentID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var patch store.AgentPatch
	if err := decodeJSON(r, &patch); err != nil && !errors.Is(err, errEmptyBody) {
		s.respondValidation(w, r, "invalid request body")
		return
	}
	agent, err := s.store.UpdateAgent(r.Context(), agentID, patch)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := uintParam(r, "agentID")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if err := s.store.DeleteAgent(r.Context(), agentID); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
