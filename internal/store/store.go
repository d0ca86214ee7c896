// Package store persists the document corpus in PostgreSQL so the in-memory
// index can be rebuilt on startup. Rows carry an index_state that tracks
// whether the engine accepted the document.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/postgres"
)

type State string

const (
	StatePending State = "PENDING"
	StateIndexed State = "INDEXED"
	StateFailed  State = "FAILED"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	id          BIGINT PRIMARY KEY,
	body        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'actual',
	ratings     INTEGER[] NOT NULL DEFAULT '{}',
	index_state TEXT NOT NULL DEFAULT 'PENDING',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	indexed_at  TIMESTAMPTZ
)`

type Record struct {
	ID        int
	Text      string
	Status    index.Status
	Ratings   []int
	State     State
	CreatedAt time.Time
}

type DocumentStore struct {
	client *postgres.Client
	logger *slog.Logger
}

func New(client *postgres.Client) *DocumentStore {
	return &DocumentStore{
		client: client,
		logger: slog.Default().With("component", "document-store"),
	}
}

func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Save inserts rec as PENDING. A row left FAILED by an earlier attempt is
// overwritten; any other existing row yields ErrDuplicateID.
func (s *DocumentStore) Save(ctx context.Context, rec Record) error {
	ratings := make(pq.Int64Array, len(rec.Ratings))
	for i, r := range rec.Ratings {
		ratings[i] = int64(r)
	}
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, body, status, ratings, index_state)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET body = EXCLUDED.body, status = EXCLUDED.status, ratings = EXCLUDED.ratings,
				index_state = EXCLUDED.index_state, created_at = NOW(), indexed_at = NULL
			WHERE documents.index_state = $6`,
			rec.ID, rec.Text, rec.Status.String(), ratings, StatePending, StateFailed,
		)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %d", apperrors.ErrDuplicateID, rec.ID)
			}
			return fmt.Errorf("inserting document %d: %w", rec.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("inserting document %d: %w", rec.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %d", apperrors.ErrDuplicateID, rec.ID)
		}
		return nil
	})
}

// MarkIndexed records the outcome of applying a document to the engine.
func (s *DocumentStore) MarkIndexed(ctx context.Context, id int, state State) error {
	_, err := s.client.DB.ExecContext(ctx,
		`UPDATE documents SET index_state = $1, indexed_at = NOW() WHERE id = $2`,
		state, id,
	)
	if err != nil {
		return fmt.Errorf("updating index state of %d: %w", id, err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, ids ...int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	arr := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		arr[i] = int64(id)
	}
	res, err := s.client.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = ANY($1)`, arr)
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	s.logger.Debug("documents deleted", "requested", len(ids), "deleted", n)
	return n, nil
}

// LoadAll returns every document not marked FAILED in insertion order.
func (s *DocumentStore) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT id, body, status, ratings, index_state, created_at
		FROM documents
		WHERE index_state <> $1
		ORDER BY created_at, id`,
		StateFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			status  string
			state   string
			ratings pq.Int64Array
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &status, &ratings, &state, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		rec.Status, err = index.ParseStatus(status)
		if err != nil {
			s.logger.Warn("skipping document with unknown status", "doc_id", rec.ID, "status", status)
			continue
		}
		rec.State = State(state)
		rec.Ratings = make([]int, len(ratings))
		for i, r := range ratings {
			rec.Ratings[i] = int(r)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return out, nil
}
