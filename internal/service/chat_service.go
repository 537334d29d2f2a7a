package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/stream"
	"github.com/liliang-cn/noise/internal/transcript"
)

// TurnState is a step of a single chat turn
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnDispatched
	TurnStreaming
	TurnFailedFallback
	TurnCompleted
	TurnAborted
	// TurnFailed ends a turn that produced neither a stream nor a fallback answer
	TurnFailed
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnDispatched:
		return "dispatched"
	case TurnStreaming:
		return "streaming"
	case TurnFailedFallback:
		return "failed_fallback"
	case TurnCompleted:
		return "completed"
	case TurnAborted:
		return "aborted"
	case TurnFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s
func (s TurnState) Terminal() bool {
	return s == TurnCompleted || s == TurnAborted || s == TurnFailed
}

// ChatClient is the gateway surface a turn needs
type ChatClient interface {
	OpenStream(ctx context.Context, req domain.OutgoingRequest) (*http.Response, error)
	Complete(ctx context.Context, req domain.OutgoingRequest) (string, error)
}

// ContextProvider supplies retrieval context for a query
type ContextProvider interface {
	GetContext(ctx context.Context, query string) domain.ContextBlock
}

// TurnResult describes how a turn ended
type TurnResult struct {
	State   TurnState
	Path    []TurnState
	Message domain.ChatMessage
	Request domain.OutgoingRequest
	Context domain.ContextBlock
	Skipped int
}

// ChatService runs chat turns against the gateway
type ChatService struct {
	client    ChatClient
	retriever ContextProvider
	builder   *transcript.Builder
	logger    *zap.Logger
}

// NewChatService creates a new chat service. retriever may be nil, in which
// case turns never carry retrieval context.
func NewChatService(
	client ChatClient,
	retriever ContextProvider,
	builder *transcript.Builder,
	logger *zap.Logger,
) *ChatService {
	if builder == nil {
		builder = transcript.NewBuilder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		client:    client,
		retriever: retriever,
		builder:   builder,
		logger:    logger.Named("chat"),
	}
}

type turn struct {
	conv   *domain.Conversation
	idx    int
	result *TurnResult
}

func (t *turn) move(s TurnState) {
	t.result.State = s
	t.result.Path = append(t.result.Path, s)
}

func (t *turn) apply(content string, onDelta func(string)) {
	if content == "" {
		return
	}
	t.conv.Messages[t.idx].Content += content
	if onDelta != nil {
		onDelta(content)
	}
}

func (t *turn) finish() *TurnResult {
	t.result.Message = t.conv.Messages[t.idx]
	return t.result
}

// Send runs one turn of conv. It appends the user message and an assistant
// message, then fills the assistant message with the streamed answer,
// calling onDelta for each fragment in arrival order.
//
// Cancelling ctx ends the turn as TurnAborted with whatever content arrived
// and a nil error. A non-nil error comes with a TurnFailed result, except for
// input errors which return no result.
func (s *ChatService) Send(ctx context.Context, conv *domain.Conversation, input string, onDelta func(string)) (*TurnResult, error) {
	prompt := strings.TrimSpace(input)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}
	if conv.Model == "" {
		return nil, domain.ErrModelRequired
	}

	history := append([]domain.ChatMessage(nil), conv.Messages...)
	conv.Append(domain.NewMessage(domain.RoleUser, prompt))

	var block domain.ContextBlock
	if conv.IncludeRAG && s.retriever != nil {
		block = s.retriever.GetContext(ctx, prompt)
	}

	attachments := conv.Attachments
	conv.Attachments = nil

	req := s.builder.BuildOutgoing(conv.Model, history, prompt, block, attachments)

	assistant := domain.NewMessage(domain.RoleAssistant, "")
	assistant.Meta = &domain.MessageMeta{RAGEnabled: conv.IncludeRAG}
	if conv.IncludeRAG {
		assistant.Meta.RAGSources = block.Sources
	}

	t := &turn{
		conv:   conv,
		idx:    conv.Append(assistant),
		result: &TurnResult{State: TurnIdle, Path: []TurnState{TurnIdle}, Request: req, Context: block},
	}

	sess := stream.NewSession(ctx)
	defer sess.Complete()

	t.move(TurnDispatched)
	resp, err := s.client.OpenStream(sess.Context(), req)
	if err != nil {
		if sess.Aborted() || domain.IsCallerAborted(err) {
			return s.aborted(t, sess), nil
		}
		sess.Fail(err)
		t.move(TurnFailed)
		s.logger.Error("chat request failed", zap.Error(err))
		return t.finish(), err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return s.fallback(t, sess, resp.StatusCode, onDelta)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return s.fallback(t, sess, resp.StatusCode, onDelta)
	}

	t.move(TurnStreaming)
	reader := stream.NewReader(resp.Body)
	for {
		d, err := reader.Next(sess.Context())
		if err == nil {
			t.apply(d.Content, onDelta)
			continue
		}

		t.result.Skipped = reader.Skipped()
		if t.result.Skipped > 0 {
			s.logger.Debug("skipped malformed stream lines", zap.Int("count", t.result.Skipped))
		}

		if errors.Is(err, io.EOF) {
			sess.Complete()
			t.move(TurnCompleted)
			return t.finish(), nil
		}
		if sess.Aborted() {
			return s.aborted(t, sess), nil
		}
		sess.Fail(err)
		t.move(TurnFailed)
		s.logger.Error("chat stream broke", zap.Error(sess.Err()))
		return t.finish(), fmt.Errorf("chat stream broke: %w", sess.Err())
	}
}

func (s *ChatService) fallback(t *turn, sess *stream.Session, status int, onDelta func(string)) (*TurnResult, error) {
	t.move(TurnFailedFallback)
	s.logger.Warn("streaming attempt failed, retrying without streaming", zap.Int("status", status))

	text, err := s.client.Complete(sess.Context(), t.result.Request)
	if err != nil {
		if sess.Aborted() || domain.IsCallerAborted(err) {
			return s.aborted(t, sess), nil
		}
		sess.Fail(err)
		t.move(TurnFailed)
		s.logger.Error("chat fallback failed", zap.Error(err))
		return t.finish(), fmt.Errorf("chat failed: %w", err)
	}

	t.apply(text, onDelta)
	sess.Complete()
	t.move(TurnCompleted)
	return t.finish(), nil
}

func (s *ChatService) aborted(t *turn, sess *stream.Session) *TurnResult {
	sess.Abort(domain.ErrCallerAborted)
	t.move(TurnAborted)
	s.logger.Info("chat turn aborted", zap.Int("chars", len(t.conv.Messages[t.idx].Content)))
	return t.finish()
}
