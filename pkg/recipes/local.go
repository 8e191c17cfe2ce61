package recipes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/souschef-ai/souschef/pkg/models"
)

// LocalSource serves recipe documents from *.json files in one directory.
// The directory is scanned on every List so dropped-in files show up
// without a restart; documents are re-read and re-parsed on every Load.
type LocalSource struct {
	dir string
}

// NewLocalSource creates a source over the given directory. The directory
// must exist.
func NewLocalSource(dir string) (*LocalSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("recipes directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("recipes path %s is not a directory", dir)
	}
	return &LocalSource{dir: dir}, nil
}

// List parses every document in the directory and returns their summaries
// sorted by id. Unparsable files are skipped, not fatal.
func (s *LocalSource) List(ctx context.Context) ([]models.RecipeSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan recipes directory: %w", err)
	}

	var out []models.RecipeSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		r, err := models.ParseDocument(data)
		if err != nil {
			continue
		}
		out = append(out, summaryOf(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Load reads and parses the document for the given id. It tries <id>.json
// first and falls back to scanning the directory for a document whose
// recipe.id matches, so filenames need not follow the id.
func (s *LocalSource) Load(ctx context.Context, id string) (*models.Recipe, error) {
	direct := filepath.Join(s.dir, id+".json")
	if data, err := os.ReadFile(direct); err == nil {
		r, err := models.ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("recipe %q: %w", id, err)
		}
		if r.ID == id {
			return r, nil
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan recipes directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		r, err := models.ParseDocument(data)
		if err != nil || r.ID != id {
			continue
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrRecipeNotFound, id)
}
