package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/noise"
	"github.com/liliang-cn/noise/internal/repository"
)

// setup isolates a test in a temp dir with its own state database
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	dbPath := filepath.Join(dir, "state.db")
	t.Setenv("NOISE_DATABASE_PATH", dbPath)
	t.Setenv("NOISE_LOG_LEVEL", "error")
	return dbPath
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func state(t *testing.T, dbPath string) *repository.StateRepository {
	t.Helper()
	db, err := repository.NewDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewStateRepository(repository.NewKVRepository(db), nil)
}

func TestSearch_CachesAndPrints(t *testing.T) {
	dbPath := setup(t)

	source := func(body string, status int) string {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "graph rag", r.URL.Query().Get("q"))
			w.WriteHeader(status)
			w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return srv.URL
	}
	t.Setenv("NOISE_RETRIEVAL_SEMANTIC_URL", source(`["s1","s2","s3","s4","s5","s6"]`, http.StatusOK))
	t.Setenv("NOISE_RETRIEVAL_VECTOR_URL", source(`boom`, http.StatusInternalServerError))
	t.Setenv("NOISE_RETRIEVAL_GRAPH_URL", source(`["g1"]`, http.StatusOK))

	out, err := run(t, "", "search", "graph", "rag")
	require.NoError(t, err)
	require.Contains(t, out, "s1\n\n---\n\ns2")
	require.Contains(t, out, "s6")
	require.Contains(t, out, "g1")

	st := state(t, dbPath)
	q, err := st.Query()
	require.NoError(t, err)
	require.Equal(t, "graph rag", q)

	sem, err := st.Results(domain.SourceSemantic)
	require.NoError(t, err)
	require.Len(t, sem, 6)

	vec, err := st.Results(domain.SourceVector)
	require.NoError(t, err)
	require.Empty(t, vec)
}

func TestLabels_ToggleAndRatio(t *testing.T) {
	dbPath := setup(t)
	st := state(t, dbPath)
	require.NoError(t, st.SaveResults(domain.SourceSemantic, []string{"alpha beta", "gamma", "delta", "eps"}))

	out, err := run(t, "", "labels", "toggle", "1", "2")
	require.NoError(t, err)
	require.Contains(t, out, `"beta" labelled as noise`)

	_, err = run(t, "", "labels", "toggle", "1", "1")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = run(t, "", "labels", "toggle", "9", "0")
	require.ErrorIs(t, err, domain.ErrNotFound)

	labels, err := st.Labels()
	require.NoError(t, err)
	require.Equal(t, noise.Labels{0: {2}}, labels)

	out, err = run(t, "", "labels", "ratio")
	require.NoError(t, err)
	require.Contains(t, out, "25.00%")
	require.Contains(t, out, "1 labelled result of 4 results")

	out, err = run(t, "", "labels", "show")
	require.NoError(t, err)
	require.Contains(t, out, "Record 1")
	require.Contains(t, out, "1 labelled token")

	_, err = run(t, "", "labels", "clear")
	require.NoError(t, err)
	sem, err := st.Results(domain.SourceSemantic)
	require.NoError(t, err)
	require.Empty(t, sem)
}

func fakeGateway(t *testing.T, answer ...string) *[]domain.OutgoingRequest {
	t.Helper()
	var seen []domain.OutgoingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.OutgoingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, a := range answer {
			b, _ := json.Marshal(map[string]any{"message": map[string]string{"content": a}})
			w.Write(append(b, '\n'))
		}
	}))
	t.Cleanup(srv.Close)
	t.Setenv("NOISE_GATEWAY_URL", srv.URL)
	return &seen
}

func TestChat_SingleTurnPersistsHistory(t *testing.T) {
	dbPath := setup(t)
	seen := fakeGateway(t, "Hel", "lo")

	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("attached text"), 0o644))

	out, err := run(t, "", "chat", "--model", "llama3", "--no-rag", "--file", notes, "--stats", "hi")
	require.NoError(t, err)
	require.Contains(t, out, "Hello")
	require.Contains(t, out, "completed")

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	require.Equal(t, "llama3", req.Model)
	require.True(t, req.Stream)
	require.Contains(t, req.Messages[len(req.Messages)-1].Content, "--- notes.txt ---\nattached text")

	hist, err := state(t, dbPath).History()
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "hi", hist[0].Content)
	require.Equal(t, "Hello", hist[1].Content)
	require.False(t, hist[1].Meta.RAGEnabled)

	out, err = run(t, "", "history", "show")
	require.NoError(t, err)
	require.Contains(t, out, "Hello")
}

func TestChat_InteractiveCarriesHistory(t *testing.T) {
	dbPath := setup(t)
	seen := fakeGateway(t, "ok")

	_, err := run(t, "first\n\nsecond\n/exit\n", "chat", "-i", "-m", "llama3", "--no-rag")
	require.NoError(t, err)

	require.Len(t, *seen, 2)
	second := (*seen)[1].Messages
	require.Len(t, second, 4)
	require.Equal(t, "first", second[1].Content)
	require.Equal(t, "ok", second[2].Content)
	require.Equal(t, "second", second[3].Content)

	hist, err := state(t, dbPath).History()
	require.NoError(t, err)
	require.Len(t, hist, 4)

	_, err = run(t, "", "history", "clear")
	require.NoError(t, err)
	hist, err = state(t, dbPath).History()
	require.NoError(t, err)
	require.Empty(t, hist)
}

func TestChat_RequiresModelAndPrompt(t *testing.T) {
	setup(t)

	_, err := run(t, "", "chat", "hi")
	require.ErrorIs(t, err, domain.ErrModelRequired)

	_, err = run(t, "", "chat", "-m", "llama3")
	require.ErrorIs(t, err, domain.ErrEmptyPrompt)
}

func TestModels(t *testing.T) {
	setup(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"mistral"},{"name":"llama3"}]}`))
	}))
	defer srv.Close()
	t.Setenv("NOISE_GATEWAY_URL", srv.URL)

	out, err := run(t, "", "models")
	require.NoError(t, err)
	require.Equal(t, "llama3\nmistral\n", out)
}
