package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrBackpressure is returned when the server answers 429.
var ErrBackpressure = errors.New("server backpressure")

// APIError is a non-2xx answer decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return ErrBackpressure
	}
	return nil
}

// Client wraps http.Client with the scheduler API calls used by the run.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// do sends body as JSON and decodes a JSON answer into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if s, ok := out.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, out)
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

// RegisterPlayer calls POST /players.
func (c *Client) RegisterPlayer(ctx context.Context, firstName, surname, rating string) (Player, error) {
	var p Player
	body := map[string]string{"first_name": firstName, "surname": surname, "rating": rating}
	err := c.do(ctx, http.MethodPost, "/players", nil, body, &p)
	return p, err
}

// CreateSession calls POST /sessions.
func (c *Client) CreateSession(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.do(ctx, http.MethodPost, "/sessions", nil, nil, &s)
	return s, err
}

// DeleteSession calls DELETE /sessions/{id}.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil, nil)
}

// AddAttendee calls POST /sessions/{id}/attendees.
func (c *Client) AddAttendee(ctx context.Context, id, playerID string) error {
	body := map[string]any{"player_id": playerID}
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/attendees", nil, body, nil)
}

// Start calls POST /sessions/{id}/start.
func (c *Client) Start(ctx context.Context, id, format string, courts int, seed int64) (StartResult, error) {
	body := map[string]any{"format": format, "courts": courts}
	if seed != 0 {
		body["seed"] = seed
	}
	var res StartResult
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/start", nil, body, &res)
	return res, err
}

// Complete calls POST /sessions/{id}/courts/{n}/complete with an idempotency key.
func (c *Client) Complete(ctx context.Context, id string, court int, requestID string) (CourtResult, error) {
	var res CourtResult
	h := http.Header{}
	if requestID != "" {
		h.Set("Idempotency-Key", requestID)
	}
	path := fmt.Sprintf("/sessions/%s/courts/%d/complete", url.PathEscape(id), court)
	err := c.do(ctx, http.MethodPost, path, h, nil, &res)
	return res, err
}

// Pause calls POST /sessions/{id}/attendees/{pid}/pause.
func (c *Client) Pause(ctx context.Context, id, playerID string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/attendees/"+url.PathEscape(playerID)+"/pause", nil, nil, nil)
}

// Unpause calls POST /sessions/{id}/attendees/{pid}/unpause.
func (c *Client) Unpause(ctx context.Context, id, playerID string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/attendees/"+url.PathEscape(playerID)+"/unpause", nil, nil, nil)
}

// Snapshot calls GET /sessions/{id}.
func (c *Client) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	var s Snapshot
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, nil, &s)
	return s, err
}

// Games calls GET /sessions/{id}/games.
func (c *Client) Games(ctx context.Context, id string) ([]GamesRow, error) {
	var rows []GamesRow
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/games", nil, nil, &rows)
	return rows, err
}

// Board calls GET /sessions/{id}/board.
func (c *Client) Board(ctx context.Context, id string) (string, error) {
	var board string
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/board", nil, nil, &board)
	return board, err
}

// withRetry repeats fn while the server reports backpressure.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, int, error) {
	var (
		v   T
		err error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		v, err = fn()
		if !errors.Is(err, ErrBackpressure) {
			return v, attempt, err
		}
		select {
		case <-ctx.Done():
			return v, attempt, ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		}
	}
	return v, maxRetries, err
}
