package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rrens/agent-handoff/internal/api/middleware"
	"github.com/Rrens/agent-handoff/internal/hub"
)

// SocketHandler mounts the hub's sockets on chi routes
type SocketHandler struct {
	server *hub.Server
}

// NewSocketHandler creates a new socket handler
func NewSocketHandler(server *hub.Server) *SocketHandler {
	return &SocketHandler{server: server}
}

// Notifier serves /ws/agents/{agentID}
func (h *SocketHandler) Notifier(w http.ResponseWriter, r *http.Request) {
	h.server.ServeNotifier(w, r, chi.URLParam(r, "agentID"))
}

// AgentChat serves /ws/tickets/{ticketID}/agent
func (h *SocketHandler) AgentChat(w http.ResponseWriter, r *http.Request) {
	agentID, _ := middleware.GetAgentID(r.Context())
	h.server.ServeAgentChat(w, r, chi.URLParam(r, "ticketID"), agentID)
}

// CustomerChat serves /ws/tickets/{ticketID}/customer
func (h *SocketHandler) CustomerChat(w http.ResponseWriter, r *http.Request) {
	h.server.ServeCustomerChat(w, r, chi.URLParam(r, "ticketID"))
}
