// Package restclient talks to the hub's REST API on behalf of an agent.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// APIError is a non-2xx response from the hub
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// envelope mirrors the server's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

// Client wraps HTTP communication with the hub
type Client struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client for the hub at baseURL, e.g. http://localhost:8080
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token used for authenticated calls
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Register creates an agent account
func (c *Client) Register(ctx context.Context, in domain.AgentCreate) (*domain.Agent, error) {
	var agent domain.Agent
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", in, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// Login authenticates and keeps the returned token for later calls
func (c *Client) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	var result domain.LoginResult
	body := domain.AgentLogin{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &result); err != nil {
		return nil, err
	}
	c.SetToken(result.AccessToken)
	return &result, nil
}

// ActiveRooms fetches the waiting and assigned tickets snapshot
func (c *Client) ActiveRooms(ctx context.Context) ([]domain.ActiveRoom, error) {
	var rooms []domain.ActiveRoom
	if err := c.do(ctx, http.MethodGet, "/api/v1/rooms/active", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// UpdateStatus confirms an agent status change
func (c *Client) UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus) error {
	path := "/api/v1/agents/" + url.PathEscape(agentID) + "/status"
	return c.do(ctx, http.MethodPut, path, domain.AgentStatusUpdate{Status: status}, nil)
}

// OnlineAgents lists agents currently online
func (c *Client) OnlineAgents(ctx context.Context) ([]domain.Agent, error) {
	var agents []domain.Agent
	if err := c.do(ctx, http.MethodGet, "/api/v1/agents/online", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// CreateTicket opens a ticket waiting for an agent
func (c *Client) CreateTicket(ctx context.Context, in domain.TicketCreate) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := c.do(ctx, http.MethodPost, "/api/v1/tickets", in, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// EscalateTicket hands a bot-owned ticket back to the agents
func (c *Client) EscalateTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	path := "/api/v1/tickets/" + url.PathEscape(ticketID) + "/escalate"
	if err := c.do(ctx, http.MethodPost, path, nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CloseTicket ends a ticket
func (c *Client) CloseTicket(ctx context.Context, ticketID string) error {
	path := "/api/v1/tickets/" + url.PathEscape(ticketID) + "/close"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Messages returns the stored transcript of a ticket
func (c *Client) Messages(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	path := "/api/v1/tickets/" + url.PathEscape(ticketID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(env.Error)}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

// errorMessage flattens the error field, which is a string or a map of
// field errors
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
