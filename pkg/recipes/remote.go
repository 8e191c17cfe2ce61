package recipes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/souschef-ai/souschef/pkg/models"
)

// DefaultCacheTTL bounds how long manifest and document fetches are reused.
const DefaultCacheTTL = 5 * time.Minute

// maxDocumentSize caps one fetched manifest or recipe document.
const maxDocumentSize = 4 << 20

// manifest mirrors the remote catalog document.
type manifest struct {
	Recipes []manifestEntry `json:"recipes"`
}

type manifestEntry struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Servings       int    `json:"servings,omitempty"`
	EstimatedTotal string `json:"estimated_total,omitempty"`
	Difficulty     string `json:"difficulty,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

// RemoteSource serves recipes from an HTTP catalog: a manifest listing
// {id, title, url} entries, each url pointing at a recipe document.
// Manifest and documents are cached with a TTL; parsing always runs per
// Load so instances are never shared.
type RemoteSource struct {
	manifestURL string
	httpClient  *http.Client
	cache       *cache
}

// NewRemoteSource creates a source over the given manifest URL. A ttl of 0
// means DefaultCacheTTL.
func NewRemoteSource(manifestURL string, ttl time.Duration) *RemoteSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RemoteSource{
		manifestURL: manifestURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		cache:       newCache(ttl),
	}
}

// OverrideHTTPClientForTest replaces the HTTP client. For testing only.
func (s *RemoteSource) OverrideHTTPClientForTest(c *http.Client) {
	s.httpClient = c
}

// List fetches the manifest and returns catalog summaries in manifest order.
func (s *RemoteSource) List(ctx context.Context) ([]models.RecipeSummary, error) {
	m, err := s.fetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RecipeSummary, 0, len(m.Recipes))
	for _, e := range m.Recipes {
		out = append(out, models.RecipeSummary{
			ID:             e.ID,
			Title:          e.Title,
			Servings:       e.Servings,
			EstimatedTotal: e.EstimatedTotal,
			Difficulty:     e.Difficulty,
			Locale:         e.Locale,
		})
	}
	return out, nil
}

// Load resolves the id through the manifest and fetches its document.
func (s *RemoteSource) Load(ctx context.Context, id string) (*models.Recipe, error) {
	m, err := s.fetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range m.Recipes {
		if e.ID != id {
			continue
		}
		data, err := s.fetchWithCache(ctx, e.URL)
		if err != nil {
			return nil, fmt.Errorf("fetch recipe %q: %w", id, err)
		}
		r, err := models.ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("recipe %q: %w", id, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrRecipeNotFound, id)
}

func (s *RemoteSource) fetchManifest(ctx context.Context) (*manifest, error) {
	data, err := s.fetchWithCache(ctx, s.manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch recipe manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse recipe manifest: %w", err)
	}
	return &m, nil
}

func (s *RemoteSource) fetchWithCache(ctx context.Context, url string) ([]byte, error) {
	if data, ok := s.cache.get(url); ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, err
	}

	s.cache.set(url, data)
	return data, nil
}
