package restclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/agent-handoff/internal/domain"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, errMsg any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": status < 300,
		"data":    data,
		"error":   errMsg,
	})
}

func TestLogin_StoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var body domain.AgentLogin
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "asha@example.com", body.Email)
			writeEnvelope(w, http.StatusOK, domain.LoginResult{AccessToken: "tok-1", ExpiresIn: 900}, nil)
		case "/api/v1/rooms/active":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			writeEnvelope(w, http.StatusOK, []domain.ActiveRoom{
				{TicketID: "T1", Status: domain.TicketStatusWaiting, UserName: "Asha"},
			}, nil)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	res, err := c.Login(context.Background(), "asha@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.AccessToken)
	assert.Equal(t, "tok-1", c.Token())

	rooms, err := c.ActiveRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "T1", rooms[0].TicketID)
}

func TestUpdateStatus(t *testing.T) {
	var got domain.AgentStatusUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/agents/a1/status", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		writeEnvelope(w, http.StatusOK, map[string]string{"status": string(got.Status)}, nil)
	}))
	defer srv.Close()

	err := New(srv.URL, 0).UpdateStatus(context.Background(), "a1", domain.AgentBusy)

	require.NoError(t, err)
	assert.Equal(t, domain.AgentBusy, got.Status)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		message string
	}{
		{
			name: "string error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusServiceUnavailable, nil, "status sync unavailable")
			},
			status:  http.StatusServiceUnavailable,
			message: "status sync unavailable",
		},
		{
			name: "validation map",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusBadRequest, nil, map[string]string{"status": "oneof"})
			},
			status:  http.StatusBadRequest,
			message: `{"status":"oneof"}`,
		},
		{
			name: "plain text body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			},
			status:  http.StatusBadGateway,
			message: "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			err := New(srv.URL, 0).CloseTicket(context.Background(), "T1")

			require.Error(t, err)
			assert.True(t, IsStatus(err, tt.status))
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestMessages_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tickets/T 1/messages", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		writeEnvelope(w, http.StatusOK, []domain.Message{{TicketID: "T 1", Sender: domain.SenderUser, Text: "hi"}}, nil)
	}))
	defer srv.Close()

	msgs, err := New(srv.URL, 0).Messages(context.Background(), "T 1", 20)

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)
}
