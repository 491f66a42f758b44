package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/evermemo/evermemo/internal/model"
)

// UpsertCluster writes a cluster and its ordered membership.
func (s *SQLiteStore) UpsertCluster(ctx context.Context, c *model.ThematicCluster) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clusters (id, user_id, theme, summary, centroid, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   theme = excluded.theme,
		   summary = excluded.summary,
		   centroid = excluded.centroid,
		   updated_at = excluded.updated_at`,
		c.ID, c.UserID, c.Theme, c.Summary, encodeVector(c.Centroid),
		c.CreatedAt.UTC().Format(time.RFC3339Nano), c.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert cluster: %w", err)
	}

	for i, unitID := range c.MemberIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO cluster_members (cluster_id, unit_id, seq) VALUES (?, ?, ?)`,
			c.ID, unitID, i)
		if err != nil {
			return fmt.Errorf("upsert cluster member: %w", err)
		}
	}

	return tx.Commit()
}

// ListClusters returns a user's clusters ordered by creation time. This
// ordering is the stable iteration order the clustering tie-break depends on.
func (s *SQLiteStore) ListClusters(ctx context.Context, userID string) ([]*model.ThematicCluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, theme, summary, centroid, created_at, updated_at
		 FROM clusters WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*model.ThematicCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range clusters {
		if c.MemberIDs, err = s.clusterMembers(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return clusters, nil
}

// GetCluster loads one cluster with its membership.
func (s *SQLiteStore) GetCluster(ctx context.Context, id string) (*model.ThematicCluster, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, theme, summary, centroid, created_at, updated_at
		 FROM clusters WHERE id = ?`, id)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cluster not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if c.MemberIDs, err = s.clusterMembers(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) clusterMembers(ctx context.Context, clusterID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id FROM cluster_members WHERE cluster_id = ? ORDER BY seq`, clusterID)
	if err != nil {
		return nil, err
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCluster(row rowScanner) (*model.ThematicCluster, error) {
	var c model.ThematicCluster
	var centroid []byte
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.UserID, &c.Theme, &c.Summary, &centroid, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Centroid = decodeVector(centroid)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &c, nil
}
