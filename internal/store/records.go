package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/dpoconv/internal/record"
)

// StoredRecord is a preference_records row.
type StoredRecord struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	Source    string
	Seq       int
	Record    record.Record
	CreatedAt time.Time
}

// WriteRecord inserts one converted record. seq is its position within the run.
func (s *Store) WriteRecord(ctx context.Context, runID uuid.UUID, source string, seq int, rec record.Record) (uuid.UUID, error) {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal messages: %w", err)
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO preference_records (id, run_id, source, seq, messages, rejected_response, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, now())`,
		id, runID, source, seq, string(messages), rec.RejectedResponse,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert preference record: %w", err)
	}
	return id, nil
}

// ListRun returns the records of one run in input order.
func (s *Store) ListRun(ctx context.Context, runID uuid.UUID) ([]StoredRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, source, seq, messages::text, rejected_response, created_at
		FROM preference_records
		WHERE run_id = $1
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			r        StoredRecord
			messages string
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Source, &r.Seq, &messages, &r.Record.RejectedResponse, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan preference record: %w", err)
		}
		if err := json.Unmarshal([]byte(messages), &r.Record.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sink adapts a Store to the conversion runner. Each run gets its own ID.
type Sink struct {
	store  *Store
	runID  uuid.UUID
	source string
	seq    int
}

func (s *Store) NewSink(source string) *Sink {
	return &Sink{store: s, runID: uuid.New(), source: source}
}

func (k *Sink) RunID() uuid.UUID { return k.runID }

func (k *Sink) Write(ctx context.Context, rec record.Record) error {
	k.seq++
	_, err := k.store.WriteRecord(ctx, k.runID, k.source, k.seq, rec)
	return err
}
