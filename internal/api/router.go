package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Rrens/agent-handoff/internal/api/handler"
	customMiddleware "github.com/Rrens/agent-handoff/internal/api/middleware"
	"github.com/Rrens/agent-handoff/internal/config"
	"github.com/Rrens/agent-handoff/internal/hub"
	"github.com/Rrens/agent-handoff/internal/security"
	"github.com/Rrens/agent-handoff/internal/service"
)

// Dependencies are the wired components the router serves
type Dependencies struct {
	Config      *config.Config
	JWTManager  *security.JWTManager
	Auth        *service.AuthService
	Agents      *service.AgentService
	Tickets     *service.TicketService
	Sockets     *hub.Server
	RateLimiter customMiddleware.Limiter
	Ready       map[string]handler.Pinger
}

// NewRouter creates and configures the HTTP router
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Hub.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authHandler := handler.NewAuthHandler(deps.Auth)
	agentHandler := handler.NewAgentHandler(deps.Agents)
	ticketHandler := handler.NewTicketHandler(deps.Tickets)
	socketHandler := handler.NewSocketHandler(deps.Sockets)

	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWTManager)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(deps.RateLimiter)

	// Sockets stay outside the request timeout
	r.Route("/ws", func(r chi.Router) {
		r.Get("/tickets/{ticketID}/customer", socketHandler.CustomerChat)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.With(customMiddleware.SameAgent).Get("/agents/{agentID}", socketHandler.Notifier)
			r.Get("/tickets/{ticketID}/agent", socketHandler.AgentChat)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.WriteTimeout > 0 {
			r.Use(middleware.Timeout(cfg.Server.WriteTimeout))
		}

		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Ready))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			r.Route("/agents", func(r chi.Router) {
				r.Get("/online", agentHandler.Online)
				r.With(customMiddleware.SameAgent).Put("/{agentID}/status", agentHandler.UpdateStatus)
			})

			r.Get("/rooms/active", ticketHandler.ActiveRooms)

			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", ticketHandler.Create)

				r.Route("/{ticketID}", func(r chi.Router) {
					r.Get("/", ticketHandler.Get)
					r.Post("/escalate", ticketHandler.Escalate)
					r.Post("/close", ticketHandler.Close)
					r.Get("/messages", ticketHandler.Messages)
				})
			})
		})
	})

	return r
}
