package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evermemo/evermemo/internal/model"
)

// LoadProfile returns the user's profile, or a fresh empty one if none has
// been stored yet.
func (s *SQLiteStore) LoadProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	p := model.NewUserProfile(userID)

	var updatedAt string
	var sourceClusters sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at, source_clusters FROM profiles WHERE user_id = ?`, userID).
		Scan(&updatedAt, &sourceClusters)
	if err == sql.ErrNoRows {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if sourceClusters.Valid {
		json.Unmarshal([]byte(sourceClusters.String), &p.SourceClusters)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value, ts, source_unit_id, confidence
		 FROM profile_attributes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.ProfileAttribute
		var ts string
		var src sql.NullString
		if err := rows.Scan(&a.Name, &a.Value, &ts, &src, &a.Confidence); err != nil {
			return nil, err
		}
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if src.Valid {
			a.SourceUnitID = src.String
		}
		p.Attributes[a.Name] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	traitRows, err := s.db.QueryContext(ctx,
		`SELECT type, description, evidence, strength, updated_at
		 FROM profile_traits WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer traitRows.Close()
	for traitRows.Next() {
		var t model.ImplicitTrait
		var evidence sql.NullString
		var ts string
		if err := traitRows.Scan(&t.Type, &t.Description, &evidence, &t.Strength, &ts); err != nil {
			return nil, err
		}
		if evidence.Valid {
			json.Unmarshal([]byte(evidence.String), &t.Evidence)
		}
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		p.Traits = append(p.Traits, t)
	}
	if err := traitRows.Err(); err != nil {
		return nil, err
	}

	p.Conflicts, err = s.loadConflicts(ctx, userID)
	return p, err
}

// SaveProfile writes the profile's live state and appends any conflict
// records not yet stored. Conflict rows are insert-only: the audit trail is
// never rewritten.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p *model.UserProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sourceClusters, _ := json.Marshal(p.SourceClusters)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, updated_at, source_clusters) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   updated_at = excluded.updated_at,
		   source_clusters = excluded.source_clusters`,
		p.UserID, p.UpdatedAt.UTC().Format(time.RFC3339Nano), string(sourceClusters))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_attributes WHERE user_id = ?`, p.UserID); err != nil {
		return err
	}
	for _, a := range p.Attributes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profile_attributes (user_id, name, value, ts, source_unit_id, confidence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.UserID, a.Name, a.Value, a.Timestamp.UTC().Format(time.RFC3339Nano), a.SourceUnitID, a.Confidence)
		if err != nil {
			return fmt.Errorf("save attribute %s: %w", a.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_traits WHERE user_id = ?`, p.UserID); err != nil {
		return err
	}
	for i, t := range p.Traits {
		evidence, _ := json.Marshal(t.Evidence)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profile_traits (user_id, seq, type, description, evidence, strength, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.UserID, i, t.Type, t.Description, string(evidence), t.Strength,
			t.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("save trait: %w", err)
		}
	}

	for _, c := range p.Conflicts {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conflicts
			   (id, user_id, attribute, old_value, new_value, old_ts, new_ts, old_source, new_source, resolution, detected_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, p.UserID, c.Attribute, c.OldValue, c.NewValue,
			c.OldTimestamp.UTC().Format(time.RFC3339Nano), c.NewTimestamp.UTC().Format(time.RFC3339Nano),
			c.OldSource, c.NewSource, c.Resolution, c.DetectedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("append conflict: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) loadConflicts(ctx context.Context, userID string) ([]model.ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attribute, old_value, new_value, old_ts, new_ts, old_source, new_source, resolution, detected_at
		 FROM conflicts WHERE user_id = ? ORDER BY detected_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConflictRecord
	for rows.Next() {
		var c model.ConflictRecord
		var oldTS, newTS, detectedAt string
		var oldSrc, newSrc sql.NullString
		if err := rows.Scan(&c.ID, &c.Attribute, &c.OldValue, &c.NewValue,
			&oldTS, &newTS, &oldSrc, &newSrc, &c.Resolution, &detectedAt); err != nil {
			return nil, err
		}
		c.OldTimestamp, _ = time.Parse(time.RFC3339Nano, oldTS)
		c.NewTimestamp, _ = time.Parse(time.RFC3339Nano, newTS)
		c.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)
		if oldSrc.Valid {
			c.OldSource = oldSrc.String
		}
		if newSrc.Valid {
			c.NewSource = newSrc.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
