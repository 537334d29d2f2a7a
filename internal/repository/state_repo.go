package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/domain"
	"github.com/liliang-cn/noise/internal/noise"
)

// Stable keys of the persisted client state
const (
	KeyChatHistory     = "noise.chat.history"
	KeyQuery           = "noise.query"
	KeyResultsSemantic = "noise.results.semantic"
	KeyResultsVector   = "noise.results.vector"
	KeyResultsGraph    = "noise.results.graph"
	KeyNoiseLabels     = "noise.labels.noise"
)

// ResultsKey returns the cache key for a source's results
func ResultsKey(title domain.SourceTitle) string {
	return "noise.results." + strings.ToLower(string(title))
}

// StateRepository persists chat history, search results and noise labels.
// Missing or corrupt values read back as empty.
type StateRepository struct {
	kv     *KVRepository
	logger *zap.Logger
}

// NewStateRepository creates a new state repository
func NewStateRepository(kv *KVRepository, logger *zap.Logger) *StateRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateRepository{kv: kv, logger: logger.Named("state")}
}

// read decodes key into v. usable is false when the key is absent or its
// value is corrupt, in which case v must be treated as empty.
func (r *StateRepository) read(key string, v any) (usable bool, err error) {
	ok, err := r.kv.GetJSON(key, v)
	if err != nil && ok {
		r.logger.Warn("ignoring corrupt stored value", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return ok && err == nil, err
}

// History returns the stored conversation messages
func (r *StateRepository) History() ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	usable, err := r.read(KeyChatHistory, &msgs)
	if err != nil {
		return nil, err
	}
	if !usable || msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// SaveHistory replaces the stored conversation messages
func (r *StateRepository) SaveHistory(msgs []domain.ChatMessage) error {
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return r.kv.PutJSON(KeyChatHistory, msgs)
}

// ClearHistory removes the stored conversation
func (r *StateRepository) ClearHistory() error {
	return r.kv.Delete(KeyChatHistory)
}

// Query returns the last search query
func (r *StateRepository) Query() (string, error) {
	var q string
	usable, err := r.read(KeyQuery, &q)
	if err != nil || !usable {
		return "", err
	}
	return q, nil
}

// SaveQuery stores the last search query
func (r *StateRepository) SaveQuery(q string) error {
	return r.kv.PutJSON(KeyQuery, q)
}

// Results returns the cached results of one source
func (r *StateRepository) Results(title domain.SourceTitle) ([]string, error) {
	var raw []any
	usable, err := r.read(ResultsKey(title), &raw)
	if err != nil {
		return nil, err
	}
	if !usable {
		return []string{}, nil
	}
	items := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			items = append(items, s)
		} else if v != nil {
			items = append(items, fmt.Sprint(v))
		}
	}
	return items, nil
}

// SaveResults caches the full result list of one source
func (r *StateRepository) SaveResults(title domain.SourceTitle, items []string) error {
	if items == nil {
		items = []string{}
	}
	return r.kv.PutJSON(ResultsKey(title), items)
}

// Labels returns the stored noise labels. Entries that are not a list of
// token indexes under a numeric key are dropped.
func (r *StateRepository) Labels() (noise.Labels, error) {
	var raw map[string]json.RawMessage
	usable, err := r.read(KeyNoiseLabels, &raw)
	if err != nil {
		return nil, err
	}

	labels := noise.Labels{}
	if !usable {
		return labels, nil
	}
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			continue
		}
		var tokens []int
		if err := json.Unmarshal(v, &tokens); err != nil {
			continue
		}
		labels[idx] = tokens
	}
	return labels, nil
}

// SaveLabels stores the noise labels
func (r *StateRepository) SaveLabels(l noise.Labels) error {
	if l == nil {
		l = noise.Labels{}
	}
	return r.kv.PutJSON(KeyNoiseLabels, l)
}

// ClearNoiseData removes the semantic results and their labels
func (r *StateRepository) ClearNoiseData() error {
	return r.kv.Delete(KeyResultsSemantic, KeyNoiseLabels)
}
