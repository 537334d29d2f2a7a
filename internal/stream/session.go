package stream

import (
	"context"
	"sync"

	"github.com/liliang-cn/noise/internal/domain"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateActive State = iota
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session owns the cancellation of one in-flight chat call.
//
// Its context is detached from the parent's cancellation: the parent being
// cancelled is turned into an Abort, so every stop path goes through the same
// single-fire transition. Once a Session has left StateActive every further
// signal is a no-op, which is what keeps a late transport-close from being
// mistaken for a disconnect after a completed response.
type Session struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	state   State
	err     error
	stop    func() bool
	onClose []func(State, error)
}

// NewSession creates a session whose teardown is also triggered by parent
// being cancelled while the session is still active.
func NewSession(parent context.Context) *Session {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	s := &Session{ctx: ctx, cancel: cancel}

	s.mu.Lock()
	s.stop = context.AfterFunc(parent, func() {
		s.Abort(domain.ErrCallerAborted)
	})
	s.mu.Unlock()

	if parent.Err() != nil {
		s.Abort(domain.ErrCallerAborted)
	}
	return s
}

// Context is cancelled exactly once, when the session closes
func (s *Session) Context() context.Context {
	return s.ctx
}

// Abort records a caller-initiated stop. It reports whether this call was the
// one that closed the session.
func (s *Session) Abort(cause error) bool {
	if cause == nil {
		cause = domain.ErrCallerAborted
	}
	return s.close(StateAborted, cause)
}

// Complete marks the relay as finished normally
func (s *Session) Complete() bool {
	return s.close(StateCompleted, nil)
}

// Fail marks the session as ended by a transport or upstream error
func (s *Session) Fail(err error) bool {
	return s.close(StateFailed, err)
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Aborted reports whether the session was stopped by the caller
func (s *Session) Aborted() bool {
	return s.State() == StateAborted
}

// Err returns the cause the session closed with, nil while active or after Complete
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// OnClose registers fn to run once when the session closes. Registering on an
// already closed session runs fn immediately.
func (s *Session) OnClose(fn func(State, error)) {
	s.mu.Lock()
	if s.state == StateActive {
		s.onClose = append(s.onClose, fn)
		s.mu.Unlock()
		return
	}
	state, err := s.state, s.err
	s.mu.Unlock()
	fn(state, err)
}

func (s *Session) close(state State, cause error) bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.err = cause
	stop := s.stop
	callbacks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.cancel(cause)

	for _, fn := range callbacks {
		fn(state, cause)
	}
	return true
}
