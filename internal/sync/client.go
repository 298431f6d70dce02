package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/models"
)

// Client is the HTTP implementation of the Remote facade.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a Client for the given sync service. A nil httpClient
// falls back to a client with a 15 second timeout.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

type addEventRequest struct {
	Event        models.Event `json:"event"`
	TargetUserID string       `json:"target_user_id,omitempty"`
}

// FetchHistory implements Remote.
func (c *Client) FetchHistory(ctx context.Context, userID string) (models.HistorySnapshot, error) {
	var out models.HistorySnapshot
	path := "/api/history?user_id=" + userID
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = models.HistorySnapshot{}
	}
	return out, nil
}

// AddEvent implements Remote. A 2xx response with a null body means the
// service rejected the event; that is reported as (nil, nil).
func (c *Client) AddEvent(ctx context.Context, event models.Event, targetUserID string) (*models.Event, error) {
	var confirmed *models.Event
	req := addEventRequest{Event: event, TargetUserID: targetUserID}
	if err := c.do(ctx, http.MethodPost, "/api/events", req, &confirmed); err != nil {
		return nil, err
	}
	return confirmed, nil
}

// DeleteEvent implements Remote.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodDelete, "/api/events/"+eventID, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sync service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Prober checks reachability of the sync service health endpoint.
type Prober struct {
	httpClient *http.Client
	healthURL  string
}

// NewProber creates a connectivity prober for the given sync service.
func NewProber(baseURL string) *Prober {
	return &Prober{
		httpClient: &http.Client{Timeout: 3 * time.Second},
		healthURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/api/health",
	}
}

// IsConnected implements Connectivity.
func (p *Prober) IsConnected() bool {
	resp, err := p.httpClient.Get(p.healthURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 256))
	return resp.StatusCode == http.StatusOK
}
