package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// SearchSparse returns the ids of the user's topK best lexical matches,
// ranked by FTS5 BM25, best first. Returns no results (not an error) when
// the query has no indexable tokens.
func (s *SQLiteStore) SearchSparse(ctx context.Context, userID, query string, topK int) ([]string, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id FROM units_fts
		 WHERE units_fts MATCH ? AND user_id = ?
		 ORDER BY bm25(units_fts)
		 LIMIT ?`, match, userID, topK)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// buildMatchQuery converts free text into an FTS5 MATCH expression: quoted
// barewords joined with OR, so punctuation and FTS operators in the user's
// question cannot break the query syntax.
func buildMatchQuery(query string) string {
	tokens := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}
