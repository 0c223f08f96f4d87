// Package cli is the thin HTTP client behind corpctl. Identity travels as the
// X-User-Id / X-Admin headers the API trusts from its gateway, so corpctl
// must only be pointed at instances the operator controls.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	UserID  string
	Admin   bool
	HTTP    *http.Client
}

func NewClient(baseURL, userID string, admin bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		UserID:  userID,
		Admin:   admin,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Register(ctx context.Context, name string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/users", map[string]any{"name": name}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", nil, &out)
	return out, err
}

func (c *Client) Prices(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/prices", nil, &out)
	return out, err
}

func (c *Client) PriceHistory(ctx context.Context, name string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/prices/"+url.PathEscape(name)+"/history", nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard", nil, &out)
	return out, err
}

func (c *Client) Corporation(ctx context.Context, corpID int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/corporations/%d", corpID), nil, &out)
	return out, err
}

func (c *Client) Transactions(ctx context.Context, corpID int64, limit int) (map[string]any, error) {
	var out map[string]any
	path := fmt.Sprintf("/v1/corporations/%d/transactions?limit=%d", corpID, limit)
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) RunTurn(ctx context.Context, period *int64) (map[string]any, error) {
	body := map[string]any{}
	if period != nil {
		body["period"] = *period
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/turn/run", body, &out)
	return out, err
}

func (c *Client) Recalc(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/recalc", map[string]any{}, &out)
	return out, err
}

func (c *Client) AdvanceTime(ctx context.Context, duration string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/time/advance", map[string]any{"duration": duration}, &out)
	return out, err
}

func (c *Client) SetTime(ctx context.Context, year int64, quarter int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/time/advance", map[string]any{"year": year, "quarter": quarter}, &out)
	return out, err
}

func (c *Client) ResolveDue(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/proposals/resolve-due", map[string]any{}, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-Id", c.UserID)
	if c.Admin {
		req.Header.Set("X-Admin", "1")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}
