// Package gateway relays model-listing and chat requests to the local
// inference backend and pipes streamed output back to the caller.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/stream"
)

const relayBufferSize = 32 * 1024

// Outcome is how a StreamChat call ended once a response had started
type Outcome int

const (
	// OutcomeCompleted means the backend body was relayed to the end
	OutcomeCompleted Outcome = iota
	// OutcomeUpstreamError means a non-success backend answer was relayed verbatim
	OutcomeUpstreamError
	// OutcomeEmpty means the backend answered without a body
	OutcomeEmpty
	// OutcomeAborted means the caller went away first
	OutcomeAborted
	// OutcomeBroken means the backend failed mid-stream
	OutcomeBroken
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeUpstreamError:
		return "upstream_error"
	case OutcomeEmpty:
		return "empty"
	case OutcomeAborted:
		return "aborted"
	case OutcomeBroken:
		return "broken"
	}
	return "unknown"
}

// Config holds backend location and connection settings
type Config struct {
	BaseURL        string
	ModelsPath     string
	ChatPath       string
	ConnectTimeout time.Duration
}

// Proxy forwards requests to the inference backend
type Proxy struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewProxy creates a proxy. The HTTP client bounds connection establishment
// only; a streamed response may run as long as the backend keeps producing.
func NewProxy(cfg Config, logger *zap.Logger) *Proxy {
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = "/api/tags"
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = "/api/chat"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &Proxy{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger.Named("gateway"),
	}
}

func (p *Proxy) url(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// ListModels forwards the model-listing request and returns the backend's
// status and body unchanged.
func (p *Proxy) ListModels(ctx context.Context) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(p.cfg.ModelsPath), nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Info("models proxy aborted (client disconnected)")
			return 0, nil, fmt.Errorf("%w: %v", domain.ErrCallerAborted, context.Cause(ctx))
		}
		p.logger.Error("models proxy failed", zap.Error(err))
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Info("models proxy aborted (client disconnected)")
			return 0, nil, fmt.Errorf("%w: %v", domain.ErrCallerAborted, context.Cause(ctx))
		}
		p.logger.Error("models proxy read failed", zap.Error(err))
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	return resp.StatusCode, body, nil
}

// StreamChat forwards body to the chat endpoint and relays the answer to w.
//
// The returned error is non-nil only when the backend could not be contacted
// and nothing was written to w yet. Every other ending, including the caller
// disconnecting, is reported through the Outcome.
func (p *Proxy) StreamChat(ctx context.Context, body []byte, w http.ResponseWriter) (Outcome, error) {
	var written atomic.Int64

	sess := stream.NewSession(ctx)
	sess.OnClose(func(state stream.State, _ error) {
		switch state {
		case stream.StateAborted:
			p.logger.Info("chat proxy aborted (client disconnected)", zap.Int64("bytes", written.Load()))
		case stream.StateCompleted:
			p.logger.Debug("chat stream relayed", zap.Int64("bytes", written.Load()))
		}
	})
	defer sess.Complete()

	req, err := http.NewRequestWithContext(sess.Context(), http.MethodPost, p.url(p.cfg.ChatPath), bytes.NewReader(body))
	if err != nil {
		return OutcomeBroken, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if sess.Aborted() {
			return OutcomeAborted, nil
		}
		sess.Fail(err)
		p.logger.Error("chat proxy failed", zap.Error(err))
		return OutcomeBroken, fmt.Errorf("%w: %v", domain.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	h := w.Header()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		h.Set("Content-Type", ct)
	}
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, err := io.ReadAll(resp.Body)
		if err != nil && !sess.Aborted() {
			p.logger.Error("chat proxy error body read failed", zap.Error(err))
		}
		n, _ := w.Write(errBody)
		written.Add(int64(n))
		p.logger.Warn("chat upstream returned error",
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(errBody)),
		)
		return OutcomeUpstreamError, nil
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return OutcomeEmpty, nil
	}

	return p.relay(sess, resp.Body, w, &written), nil
}

// relay copies src to w chunk by chunk, flushing after each write
func (p *Proxy) relay(sess *stream.Session, src io.Reader, w http.ResponseWriter, written *atomic.Int64) Outcome {
	rc := http.NewResponseController(w)
	buf := make([]byte, relayBufferSize)

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				sess.Abort(domain.ErrCallerAborted)
				return OutcomeAborted
			}
			written.Add(int64(n))
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				sess.Abort(domain.ErrCallerAborted)
				return OutcomeAborted
			}
		}
		if rerr == nil {
			continue
		}
		if rerr == io.EOF {
			// A caller abort may have closed the session first.
			if sess.Complete() {
				return OutcomeCompleted
			}
			return OutcomeAborted
		}
		if sess.Aborted() {
			return OutcomeAborted
		}
		sess.Fail(rerr)
		p.logger.Error("chat upstream stream error", zap.Error(rerr), zap.Int64("bytes", written.Load()))
		return OutcomeBroken
	}
}
