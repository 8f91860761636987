package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"survey-backend/internal/config"
	"survey-backend/internal/instrument"
)

const (
	loginPath   = "/api/v1/security/login"
	executePath = "/api/v1/sqllab/execute/"

	maxErrorBody = 2048
)

// ErrNoToken means the login answer carried no access token.
var ErrNoToken = errors.New("analytics login returned no access token")

// StatusError is a non-2xx answer from the analytics service.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analytics %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Result is the SQL Lab answer. Columns and Data follow the service's JSON
// shape; anything else is kept in Raw.
type Result struct {
	Status  string           `json:"status"`
	Columns []map[string]any `json:"columns"`
	Data    []map[string]any `json:"data"`
	Query   map[string]any   `json:"query,omitempty"`
	Raw     json.RawMessage  `json:"-"`
}

// Client runs ad-hoc SQL through the analytics service's SQL Lab API. The
// access token is cached and refreshed once when a call is rejected with 401.
type Client struct {
	baseURL    string
	username   string
	password   string
	databaseID int
	http       *http.Client

	mu    sync.Mutex
	token string
}

func NewClient(cfg config.AnalyticsConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		databaseID: cfg.DatabaseID,
		http:       &http.Client{Timeout: timeout},
	}
}

// Execute runs sql synchronously on the configured database.
func (c *Client) Execute(ctx context.Context, sql string) (*Result, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "analytics", "sqllab", "execute")
	defer span.End()

	res, err := c.execute(ctx, sql, false)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
		span.SetMetadata("relogin", true)
		res, err = c.execute(ctx, sql, true)
	}
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	span.SetMetadata("rows", len(res.Data))
	span.SetStatus("ok")
	return res, nil
}

func (c *Client) execute(ctx context.Context, sql string, freshToken bool) (*Result, error) {
	token, err := c.accessToken(ctx, freshToken)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"database_id": c.databaseID,
		"sql":         sql,
		"runAsync":    false,
		"json":        true,
	}
	raw, err := c.post(ctx, "execute", executePath, token, body)
	if err != nil {
		return nil, err
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode analytics result: %w", err)
	}
	res.Raw = raw
	return &res, nil
}

func (c *Client) accessToken(ctx context.Context, fresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && !fresh {
		return c.token, nil
	}

	raw, err := c.post(ctx, "login", loginPath, "", map[string]any{
		"username": c.username,
		"password": c.password,
		"provider": "db",
	})
	if err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return "", ErrNoToken
	}
	c.token = out.AccessToken
	return c.token, nil
}

func (c *Client) post(ctx context.Context, op, path, token string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analytics %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
