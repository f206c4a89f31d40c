package handler

import (
	"net/http"

	"github.com/Rrens/agent-handoff/internal/api/response"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register handles agent registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input domain.AgentCreate
	if !decode(w, r, &input) {
		return
	}

	agent, err := h.authService.Register(r.Context(), input)
	if err != nil {
		fail(w, err)
		return
	}

	response.Created(w, agent)
}

// Login handles agent login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input domain.AgentLogin
	if !decode(w, r, &input) {
		return
	}

	result, err := h.authService.Login(r.Context(), input)
	if err != nil {
		fail(w, err)
		return
	}

	response.OK(w, result)
}
