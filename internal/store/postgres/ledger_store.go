package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// LedgerStore implements domain.LedgerStore as a single-row JSONB snapshot.
// The ledger mutates under one writer, so the whole record is rewritten per
// save; history lives in the trade event journal, not here.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Load reads the snapshot row. An empty table maps to domain.ErrNotFound so
// callers can distinguish first-run from a broken record.
func (s *LedgerStore) Load(ctx context.Context) (*domain.Ledger, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		"SELECT record FROM ledger WHERE id = 1").Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: ledger: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load ledger: %w", err)
	}

	var led domain.Ledger
	if err := json.Unmarshal(record, &led); err != nil {
		return nil, fmt.Errorf("postgres: decode ledger: %w", err)
	}
	return &led, nil
}

// Save upserts the snapshot row with the full record.
func (s *LedgerStore) Save(ctx context.Context, led *domain.Ledger) error {
	record, err := json.Marshal(led)
	if err != nil {
		return fmt.Errorf("postgres: encode ledger: %w", err)
	}

	const query = `
		INSERT INTO ledger (id, record, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, record, time.Now().UTC()); err != nil {
		return fmt.Errorf("postgres: save ledger: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
