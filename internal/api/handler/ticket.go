package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Rrens/agent-handoff/internal/api/response"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/service"
)

// TicketHandler handles ticket and room endpoints
type TicketHandler struct {
	ticketService *service.TicketService
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(ticketService *service.TicketService) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

// Create opens a waiting ticket
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input domain.TicketCreate
	if !decode(w, r, &input) {
		return
	}

	ticket, err := h.ticketService.Create(r.Context(), input)
	if err != nil {
		fail(w, err)
		return
	}

	response.Created(w, ticket)
}

// Get returns one ticket
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.ticketService.Get(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		fail(w, err)
		return
	}

	response.OK(w, ticket)
}

// Escalate returns a bot ticket to the waiting queue
func (h *TicketHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.ticketService.Escalate(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		fail(w, err)
		return
	}

	response.OK(w, ticket)
}

// Close ends a ticket
func (h *TicketHandler) Close(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.ticketService.Close(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		fail(w, err)
		return
	}

	response.OK(w, ticket)
}

// Messages returns the stored transcript
func (h *TicketHandler) Messages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := h.ticketService.Messages(r.Context(), chi.URLParam(r, "ticketID"), limit)
	if err != nil {
		fail(w, err)
		return
	}

	response.OK(w, messages)
}

// ActiveRooms returns the waiting and assigned tickets
func (h *TicketHandler) ActiveRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.ticketService.ActiveRooms(r.Context())
	if err != nil {
		fail(w, err)
		return
	}

	response.OK(w, rooms)
}
