package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jasperwreed/agent-index/internal/models"
)

// Branches groups sessions by git branch and project. An empty filter matches
// every branch; otherwise it is a substring match.
func (s *SQLiteStore) Branches(ctx context.Context, filter string, limit int) ([]models.BranchStat, error) {
	rows, err := s.readDB.QueryContext(ctx, queryBranches, likePattern(filter), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer rows.Close()

	var out []models.BranchStat
	for rows.Next() {
		var b models.BranchStat
		var last int64
		var ids sql.NullString
		if err := rows.Scan(&b.Branch, &b.Project, &b.Sessions, &b.Messages,
			&b.Usage.InputTokens, &b.Usage.OutputTokens, &b.Usage.CacheCreationTokens, &b.Usage.CacheReadTokens,
			&last, &ids); err != nil {
			return nil, err
		}
		b.LastActivity = fromMillis(last)
		if ids.Valid && ids.String != "" {
			b.SessionIDs = strings.Split(ids.String, ",")
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
