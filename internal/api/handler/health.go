package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/Rrens/agent-handoff/internal/api/response"
)

// Pinger is a dependency that can report readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including every named dependency
func ReadyCheck(deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		for _, name := range names {
			if err := deps[name].Ping(r.Context()); err != nil {
				response.ServiceUnavailable(w, name+" not ready")
				return
			}
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
