package store

import (
	"context"
	"os"
)

// Stats summarizes a user's stored memory.
type Stats struct {
	Units      int   `json:"units"`
	Clusters   int   `json:"clusters"`
	Foresights int   `json:"foresights"`
	Conflicts  int   `json:"conflicts"`
	DBBytes    int64 `json:"db_bytes"`
}

// UserStats counts a user's units, clusters, foresights, and conflict
// records, plus the on-disk size of the database.
func (s *SQLiteStore) UserStats(ctx context.Context, userID string) (*Stats, error) {
	st := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM units WHERE user_id = ?`, &st.Units},
		{`SELECT COUNT(*) FROM clusters WHERE user_id = ?`, &st.Clusters},
		{`SELECT COUNT(*) FROM foresights f JOIN units u ON u.id = f.unit_id WHERE u.user_id = ?`, &st.Foresights},
		{`SELECT COUNT(*) FROM conflicts WHERE user_id = ?`, &st.Conflicts},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql, userID).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var path string
	if err := s.db.QueryRowContext(ctx,
		`SELECT file FROM pragma_database_list WHERE name = 'main'`).Scan(&path); err == nil && path != "" {
		if fi, err := os.Stat(path); err == nil {
			st.DBBytes = fi.Size()
		}
	}

	return st, nil
}
