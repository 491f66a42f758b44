// Package store persists memory units, thematic clusters, and user profiles
// in SQLite, and serves as both the lexical (FTS5/BM25) and vector (exact
// cosine) index over a user's memory.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/evermemo/evermemo/internal/model"
)

// SQLiteStore is the single persistence layer for the memory engine.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewID returns a new ULID for units and clusters.
func (s *SQLiteStore) NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		narrative       TEXT NOT NULL,
		atomic_facts    TEXT,
		tags            TEXT,
		conversation_id TEXT,
		turn_start      INTEGER NOT NULL DEFAULT 0,
		turn_end        INTEGER NOT NULL DEFAULT 0,
		participants    TEXT,
		created_at      TEXT NOT NULL,
		cluster_id      TEXT,
		embedding       BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_units_user ON units(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_units_cluster ON units(cluster_id);

	CREATE TABLE IF NOT EXISTS foresights (
		id         TEXT PRIMARY KEY,
		unit_id    TEXT NOT NULL REFERENCES units(id),
		content    TEXT NOT NULL,
		t_start    TEXT NOT NULL,
		t_end      TEXT,
		confidence REAL NOT NULL DEFAULT 0.8
	);
	CREATE INDEX IF NOT EXISTS idx_foresights_unit ON foresights(unit_id);

	CREATE TABLE IF NOT EXISTS clusters (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		theme      TEXT,
		summary    TEXT,
		centroid   BLOB,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clusters_user ON clusters(user_id, created_at);

	CREATE TABLE IF NOT EXISTS cluster_members (
		cluster_id TEXT NOT NULL REFERENCES clusters(id),
		unit_id    TEXT NOT NULL REFERENCES units(id),
		seq        INTEGER NOT NULL,
		PRIMARY KEY (cluster_id, unit_id)
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id    TEXT PRIMARY KEY,
		updated_at TEXT NOT NULL,
		source_clusters TEXT
	);

	CREATE TABLE IF NOT EXISTS profile_attributes (
		user_id        TEXT NOT NULL,
		name           TEXT NOT NULL,
		value          TEXT NOT NULL,
		ts             TEXT NOT NULL,
		source_unit_id TEXT,
		confidence     REAL NOT NULL DEFAULT 1.0,
		PRIMARY KEY (user_id, name)
	);

	CREATE TABLE IF NOT EXISTS profile_traits (
		user_id     TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		type        TEXT NOT NULL,
		description TEXT NOT NULL,
		evidence    TEXT,
		strength    REAL NOT NULL DEFAULT 0.5,
		updated_at  TEXT NOT NULL,
		PRIMARY KEY (user_id, seq)
	);

	CREATE TABLE IF NOT EXISTS conflicts (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		attribute   TEXT NOT NULL,
		old_value   TEXT NOT NULL,
		new_value   TEXT NOT NULL,
		old_ts      TEXT NOT NULL,
		new_ts      TEXT NOT NULL,
		old_source  TEXT,
		new_source  TEXT,
		resolution  TEXT NOT NULL,
		detected_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conflicts_user ON conflicts(user_id, detected_at);

	CREATE VIRTUAL TABLE IF NOT EXISTS units_fts USING fts5(
		text,
		unit_id UNINDEXED,
		user_id UNINDEXED
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutUnit persists a unit with its foresights and indexes its searchable
// text. The unit must already carry its embedding and cluster assignment.
func (s *SQLiteStore) PutUnit(ctx context.Context, u *model.MemoryUnit, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	facts, _ := json.Marshal(u.AtomicFacts)
	tags, _ := json.Marshal(u.Tags)
	participants, _ := json.Marshal(u.Participants)

	var clusterID *string
	if u.ClusterID != "" {
		clusterID = &u.ClusterID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO units (id, user_id, narrative, atomic_facts, tags, conversation_id,
		                    turn_start, turn_end, participants, created_at, cluster_id, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, userID, u.Narrative, string(facts), string(tags), u.ConversationID,
		u.TurnStart, u.TurnEnd, string(participants),
		u.CreatedAt.UTC().Format(time.RFC3339Nano), clusterID, encodeVector(u.Embedding))
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}

	for _, f := range u.Foresights {
		var tEnd *string
		if f.TEnd != nil {
			v := f.TEnd.UTC().Format(time.RFC3339Nano)
			tEnd = &v
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO foresights (id, unit_id, content, t_start, t_end, confidence)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, u.ID, f.Content, f.TStart.UTC().Format(time.RFC3339Nano), tEnd, f.Confidence)
		if err != nil {
			return fmt.Errorf("insert foresight: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO units_fts (text, unit_id, user_id) VALUES (?, ?, ?)`,
		u.SearchableText(), u.ID, userID)
	if err != nil {
		return fmt.Errorf("index unit: %w", err)
	}

	return tx.Commit()
}

// GetUnits loads units by id, preserving the order of ids. Unknown ids are
// skipped.
func (s *SQLiteStore) GetUnits(ctx context.Context, ids []string) ([]*model.MemoryUnit, error) {
	units := make([]*model.MemoryUnit, 0, len(ids))
	for _, id := range ids {
		u, err := s.getUnit(ctx, id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// ListUnits returns all of a user's units in creation order.
func (s *SQLiteStore) ListUnits(ctx context.Context, userID string) ([]*model.MemoryUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM units WHERE user_id = ? ORDER BY created_at, id`, userID)
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
	return s.GetUnits(ctx, ids)
}

func (s *SQLiteStore) getUnit(ctx context.Context, id string) (*model.MemoryUnit, error) {
	var u model.MemoryUnit
	var facts, tags, parts, conversationID, cluster sql.NullString
	var createdAt string
	var embedding []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, narrative, atomic_facts, tags, conversation_id, turn_start, turn_end,
		        participants, created_at, cluster_id, embedding
		 FROM units WHERE id = ?`, id).
		Scan(&u.ID, &u.Narrative, &facts, &tags, &conversationID, &u.TurnStart, &u.TurnEnd,
			&parts, &createdAt, &cluster, &embedding)
	if err != nil {
		return nil, err
	}

	if facts.Valid {
		json.Unmarshal([]byte(facts.String), &u.AtomicFacts)
	}
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &u.Tags)
	}
	if parts.Valid {
		json.Unmarshal([]byte(parts.String), &u.Participants)
	}
	if conversationID.Valid {
		u.ConversationID = conversationID.String
	}
	if cluster.Valid {
		u.ClusterID = cluster.String
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	u.Embedding = decodeVector(embedding)

	u.Foresights, err = s.unitForesights(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) unitForesights(ctx context.Context, unitID string) ([]model.Foresight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, t_start, t_end, confidence FROM foresights WHERE unit_id = ? ORDER BY id`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Foresight
	for rows.Next() {
		var (
			f      model.Foresight
			tStart string
			tEnd   sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Content, &tStart, &tEnd, &f.Confidence); err != nil {
			return nil, err
		}
		f.SourceUnitID = unitID
		f.TStart, _ = time.Parse(time.RFC3339Nano, tStart)
		if tEnd.Valid {
			t, _ := time.Parse(time.RFC3339Nano, tEnd.String)
			f.TEnd = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
