package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/api/response"
	"github.com/Rrens/agent-handoff/internal/security"
)

type contextKey string

const (
	AgentIDKey    contextKey = "agentID"
	AgentNameKey  contextKey = "agentName"
	AgentEmailKey contextKey = "agentEmail"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager *security.JWTManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *security.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// Authenticate validates the bearer token. Browsers cannot set headers on a
// WebSocket handshake, so a token query parameter is accepted as well.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			response.Unauthorized(w, "missing authorization header")
			return
		}

		claims, err := m.jwtManager.ValidateAccessToken(token)
		if err != nil {
			response.Unauthorized(w, "invalid or expired token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), AgentIDKey, claims.AgentID())
		ctx = context.WithValue(ctx, AgentNameKey, claims.Name)
		ctx = context.WithValue(ctx, AgentEmailKey, claims.Email)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetAgentID gets the agent ID from context
func GetAgentID(ctx context.Context) (string, bool) {
	agentID, ok := ctx.Value(AgentIDKey).(string)
	return agentID, ok && agentID != ""
}

// GetAgentName gets the agent display name from context
func GetAgentName(ctx context.Context) string {
	name, _ := ctx.Value(AgentNameKey).(string)
	return name
}

// SameAgent rejects requests whose {agentID} URL parameter is not the
// authenticated agent
func SameAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID, ok := GetAgentID(r.Context())
		if !ok {
			response.Unauthorized(w, "unauthorized")
			return
		}
		if chi.URLParam(r, "agentID") != agentID {
			response.Forbidden(w, "token does not belong to this agent")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Limiter counts requests per key
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int, time.Time, error)
}

// RateLimitMiddleware handles rate limiting
type RateLimitMiddleware struct {
	rateLimiter Limiter
}

// NewRateLimitMiddleware creates a new rate limit middleware. A nil limiter
// lets every request through.
func NewRateLimitMiddleware(rateLimiter Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter}
}

// Limit applies rate limiting based on agent ID
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.rateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		agentID, ok := GetAgentID(r.Context())
		if !ok {
			response.Unauthorized(w, "unauthorized")
			return
		}

		allowed, remaining, resetTime, err := m.rateLimiter.Allow(r.Context(), agentID)
		if err != nil {
			// If rate limiter fails, allow the request but log the error
			log.Warn().Err(err).Str("agent_id", agentID).Msg("Rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetTime.UTC().Format(time.RFC3339))

		if !allowed {
			response.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
