package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/liliang-cn/noise/internal/domain"
)

// Source is one retrieval backend returning ranked text snippets
type Source interface {
	Title() domain.SourceTitle
	Search(ctx context.Context, query string) ([]string, error)
}

// HTTPSource queries GET <endpoint>?q=<query> and expects a JSON array
type HTTPSource struct {
	title    domain.SourceTitle
	endpoint string
	client   *http.Client
}

// NewHTTPSource creates a source backed by an HTTP endpoint
func NewHTTPSource(title domain.SourceTitle, endpoint string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{title: title, endpoint: endpoint, client: client}
}

// Title returns the source title
func (s *HTTPSource) Title() domain.SourceTitle {
	return s.title
}

// Search runs the query against the endpoint
func (s *HTTPSource) Search(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid %s endpoint: %w", s.title, err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", s.title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s search failed with status %d", s.title, resp.StatusCode)
	}

	var raw []any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s results: %w", s.title, err)
	}

	items := make([]string, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			items = append(items, x)
		case nil:
			items = append(items, "null")
		default:
			items = append(items, fmt.Sprint(x))
		}
	}
	return items, nil
}

// NewHTTPSources builds the Semantic, Vector and Graph sources in rendering order
func NewHTTPSources(semanticURL, vectorURL, graphURL string, client *http.Client) []Source {
	return []Source{
		NewHTTPSource(domain.SourceSemantic, semanticURL, client),
		NewHTTPSource(domain.SourceVector, vectorURL, client),
		NewHTTPSource(domain.SourceGraph, graphURL, client),
	}
}
