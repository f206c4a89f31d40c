package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/api/response"
	"github.com/Rrens/agent-handoff/internal/domain"
)

var validate = validator.New()

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "invalid request body")
		return false
	}

	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string)
			for _, e := range validationErrors {
				switch e.Tag() {
				case "required":
					fields[e.Field()] = "field is required"
				case "email":
					fields[e.Field()] = "invalid email format"
				case "min":
					fields[e.Field()] = "must be at least " + e.Param() + " characters"
				case "max":
					fields[e.Field()] = "must be at most " + e.Param() + " characters"
				case "oneof":
					fields[e.Field()] = "must be one of: " + e.Param()
				default:
					fields[e.Field()] = "validation failed on " + e.Tag()
				}
			}
			response.BadRequest(w, fields)
			return false
		}
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

// fail maps domain errors to status codes
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTicketNotFound), errors.Is(err, domain.ErrAgentNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(w, err.Error())
	case errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrInvalidTransition):
		response.Conflict(w, err.Error())
	case errors.Is(err, domain.ErrNotClaimHolder):
		response.Forbidden(w, err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		response.BadRequest(w, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		response.InternalError(w, "internal server error")
	}
}
