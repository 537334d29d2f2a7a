package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/noise/internal/domain"
)

func TestListModels_SortedAndNonEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/ollama/models", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"mistral"},{"name":""},{"name":"llama3"},{"name":"codellama"}]}`))
	}))
	defer srv.Close()

	names, err := New(srv.URL+"/", time.Second).ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"codellama", "llama3", "mistral"}, names)
}

func TestListModels_NonSuccessCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"Failed to reach Ollama. Is it running?"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ListModels(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstream)

	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, http.StatusBadGateway, ue.StatusCode)
	require.Contains(t, ue.Body, "Is it running?")
}

func TestListModels_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).ListModels(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstreamUnreachable)
}

func TestOpenStream_SetsStreamFlag(t *testing.T) {
	var got domain.OutgoingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/ollama/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"content":"hi"}}` + "\n"))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).OpenStream(context.Background(), domain.OutgoingRequest{
		Model:    "llama3",
		Messages: []domain.WireMessage{{Role: domain.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "hi")
	require.True(t, got.Stream)
	require.Equal(t, "llama3", got.Model)
}

func TestComplete(t *testing.T) {
	var got domain.OutgoingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"message":{"role":"assistant","content":"full answer"},"done":true}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, time.Second).Complete(context.Background(), domain.OutgoingRequest{Model: "m", Stream: true})
	require.NoError(t, err)
	require.Equal(t, "full answer", out)
	require.False(t, got.Stream)
}

func TestComplete_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Complete(context.Background(), domain.OutgoingRequest{Model: "m"})
	require.ErrorIs(t, err, domain.ErrUpstream)
}

func TestOpenStream_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL, time.Second).OpenStream(ctx, domain.OutgoingRequest{Model: "m"})
	require.ErrorIs(t, err, domain.ErrCallerAborted)
}
