// Package client talks to a replica over its HTTP API. Replicas use it to
// share messages with each other and feedctl uses it to drive a node.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"replicated-feed/internal/event"
	"replicated-feed/internal/feed"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the replica at baseURL. Every request is bounded
// by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the replica address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post submits a local write. The ack carries the replica's clock after
// the write.
func (c *Client) Post(ctx context.Context, w event.Write) (event.Ack, error) {
	var ack event.Ack
	if err := c.postJSON(ctx, "/post", w, &ack); err != nil {
		return event.Ack{}, err
	}
	return ack, nil
}

// Share hands a message authored elsewhere to the replica.
func (c *Client) Share(ctx context.Context, m event.Message) (event.Ack, error) {
	var ack event.Ack
	if err := c.postJSON(ctx, "/share", m, &ack); err != nil {
		return event.Ack{}, err
	}
	return ack, nil
}

// Feed fetches the replica's current view.
func (c *Client) Feed(ctx context.Context) (feed.View, error) {
	var v feed.View
	if err := c.getJSON(ctx, "/feed", &v); err != nil {
		return feed.View{}, err
	}
	return v, nil
}

// FeedText fetches the rendered feed.
func (c *Client) FeedText(ctx context.Context) (string, error) {
	return c.GetRaw(ctx, "/feed/text")
}

// Status fetches the replica summary.
func (c *Client) Status(ctx context.Context) (feed.Summary, error) {
	var s feed.Summary
	if err := c.getJSON(ctx, "/status", &s); err != nil {
		return feed.Summary{}, err
	}
	return s, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
