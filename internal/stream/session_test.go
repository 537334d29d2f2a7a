package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/noise/internal/domain"
)

func TestSession_AbortIsIdempotent(t *testing.T) {
	s := NewSession(context.Background())

	var calls atomic.Int32
	s.OnClose(func(State, error) { calls.Add(1) })

	require.True(t, s.Abort(nil))
	require.False(t, s.Abort(nil))
	require.False(t, s.Complete())

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, StateAborted, s.State())
	require.ErrorIs(t, s.Err(), domain.ErrCallerAborted)
	require.ErrorIs(t, context.Cause(s.Context()), domain.ErrCallerAborted)
}

func TestSession_ConcurrentSignalsCloseOnce(t *testing.T) {
	s := NewSession(context.Background())

	var calls atomic.Int32
	s.OnClose(func(State, error) { calls.Add(1) })

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Abort(nil) {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
	require.Equal(t, int32(1), calls.Load())
}

func TestSession_ParentCancelAborts(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := NewSession(parent)

	cancel()

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed after parent cancel")
	}
	require.True(t, s.Aborted())
}

func TestSession_CancelAfterCompleteIsNotAnAbort(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := NewSession(parent)

	require.True(t, s.Complete())
	cancel()
	time.Sleep(10 * time.Millisecond)

	require.Equal(t, StateCompleted, s.State())
	require.False(t, s.Aborted())
	require.NoError(t, s.Err())
}

func TestSession_FailRecordsCause(t *testing.T) {
	boom := errors.New("boom")
	s := NewSession(context.Background())

	require.True(t, s.Fail(boom))
	require.False(t, s.Abort(nil))
	require.Equal(t, StateFailed, s.State())
	require.ErrorIs(t, s.Err(), boom)
}

func TestSession_OnCloseAfterClose(t *testing.T) {
	s := NewSession(context.Background())
	s.Complete()

	var got State
	s.OnClose(func(st State, _ error) { got = st })
	require.Equal(t, StateCompleted, got)
}

func TestSession_AlreadyCancelledParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(parent)
	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed for cancelled parent")
	}
	require.True(t, s.Aborted())
}
