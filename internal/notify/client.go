package notify

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

// Client posts draw-completion notifications to a configured endpoint.
// Delivery is fire-and-forget: the keeper dispatches at most one attempt
// per round per process and never retries a failure.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
}

func NewClient(endpoint, secret string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("notify endpoint required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("notify url parse %q: %w", endpoint, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("notify url must be http(s), got %q", endpoint)
	}
	return &Client{
		endpoint: endpoint,
		secret:   secret,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
	}, nil
}

type drawCompletedBody struct {
	RoundNumber  uint64 `json:"roundNumber"`
	SharedSecret string `json:"sharedSecret"`
}

// DrawCompleted announces that a round finished. Any 2xx response counts
// as delivered; everything else is an error for the caller to log.
func (c *Client) DrawCompleted(ctx context.Context, round uint64) error {
	body, err := json.Marshal(drawCompletedBody{
		RoundNumber:  round,
		SharedSecret: c.secret,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify round %d: %w", round, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := readBodyLimit(resp.Body, 4<<10)
		return fmt.Errorf("notify round %d: status=%d body=%q", round, resp.StatusCode, snippet)
	}
	return nil
}

func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	lr := &io.LimitedReader{R: r, N: max}
	b, _ := io.ReadAll(lr)
	return strings.TrimSpace(string(b))
}
