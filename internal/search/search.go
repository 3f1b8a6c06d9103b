// Package search turns free-text queries into safe FTS5 match expressions
// and runs them against the index.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/storage"
)

// MaxLimit bounds the number of results a single search may request.
const MaxLimit = 1000

// Filters narrows results after ranking. Empty fields match everything.
type Filters struct {
	Project string
	Role    string
}

type Searcher struct {
	store *storage.SQLiteStore
}

func NewSearcher(store *storage.SQLiteStore) *Searcher {
	return &Searcher{store: store}
}

// Search ranks messages containing every term of query, best match first.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit < 1 || limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be within 1..%d, got %d", models.ErrInvalidQuery, MaxLimit, limit)
	}
	match, err := BuildMatchQuery(query)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, match, limit)
}

func (s *Searcher) SearchWithFilters(ctx context.Context, query string, limit int, filters Filters) ([]models.SearchResult, error) {
	results, err := s.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if filters.Project != "" {
		filtered := []models.SearchResult{}
		for _, r := range results {
			if strings.Contains(r.Project, filters.Project) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if filters.Role != "" {
		filtered := []models.SearchResult{}
		for _, r := range results {
			if r.Role == filters.Role {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	return results, nil
}

// BuildMatchQuery quotes each whitespace-separated term and ANDs them, so
// FTS5 operators and column filters in user input are matched literally.
// Terms with no letters or digits are dropped.
func BuildMatchQuery(query string) (string, error) {
	var terms []string
	for _, field := range strings.Fields(query) {
		if strings.IndexFunc(field, isWordRune) < 0 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	if len(terms) == 0 {
		return "", fmt.Errorf("%w: search query %q has no searchable terms", models.ErrInvalidQuery, query)
	}
	return strings.Join(terms, " AND "), nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
