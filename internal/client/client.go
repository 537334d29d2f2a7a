// Package client talks to the gateway from the consuming side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/liliang-cn/noise/internal/domain"
)

const maxErrorBody = 4096

// Client is an HTTP client for the gateway's /api/ollama surface
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the gateway at baseURL. Only dialing is bounded
// by a timeout so streamed answers can run as long as they need.
func New(baseURL string, connectTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport},
	}
}

type modelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the available model names sorted ascending
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ollama/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp)
	}

	var mr modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	names := make([]string, 0, len(mr.Models))
	for _, m := range mr.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// OpenStream posts a streaming chat request. The caller owns the response
// body and must check the status itself.
func (c *Client) OpenStream(ctx context.Context, r domain.OutgoingRequest) (*http.Response, error) {
	r.Stream = true
	return c.postChat(ctx, r)
}

type completeResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Complete posts a non-streaming chat request and returns the whole answer
func (c *Client) Complete(ctx context.Context, r domain.OutgoingRequest) (string, error) {
	r.Stream = false
	resp, err := c.postChat(ctx, r)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstreamError(resp)
	}

	var cr completeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("failed to decode completion: %w", err)
	}
	return cr.Message.Content, nil
}

func (c *Client) postChat(ctx context.Context, r domain.OutgoingRequest) (*http.Response, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ollama/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCallerAborted, context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	return resp, nil
}

func upstreamError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
