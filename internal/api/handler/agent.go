package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Rrens/agent-handoff/internal/api/response"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/service"
)

// AgentHandler handles agent availability endpoints
type AgentHandler struct {
	agentService *service.AgentService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(agentService *service.AgentService) *AgentHandler {
	return &AgentHandler{agentService: agentService}
}

// UpdateStatus sets the agent's availability
func (h *AgentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var input domain.AgentStatusUpdate
	if !decode(w, r, &input) {
		return
	}

	agentID := chi.URLParam(r, "agentID")
	if err := h.agentService.UpdateStatus(r.Context(), agentID, input.Status); err != nil {
		fail(w, err)
		return
	}

	response.OK(w, map[string]any{
		"agent_id": agentID,
		"status":   input.Status,
	})
}

// Online lists online agents
func (h *AgentHandler) Online(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agentService.Online(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	if agents == nil {
		agents = []domain.Agent{}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(len(agents)))
	response.OK(w, agents)
}
