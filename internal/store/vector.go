package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/evermemo/evermemo/internal/embedding"
)

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// SearchDense returns the ids of the user's topK most similar units by
// cosine similarity, best first. Exact scan over the user's embeddings; at
// conversational-memory scale this outperforms index maintenance.
func (s *SQLiteStore) SearchDense(ctx context.Context, userID string, query []float32, topK int) ([]string, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM units WHERE user_id = ? AND embedding IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	defer rows.Close()

	type hit struct {
		id    string
		score float64
	}
	var hits []hit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		score := embedding.CosineSimilarity(query, decodeVector(blob))
		hits = append(hits, hit{id: id, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}
