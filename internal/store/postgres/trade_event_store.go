package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hedgeworks/crossarb/internal/domain"
)

// TradeEventStore implements domain.TradeEventStore using PostgreSQL. Events
// are append-only; nothing updates or deletes them.
type TradeEventStore struct {
	pool *pgxpool.Pool
}

// NewTradeEventStore creates a TradeEventStore backed by the given
// connection pool.
func NewTradeEventStore(pool *pgxpool.Pool) *TradeEventStore {
	return &TradeEventStore{pool: pool}
}

const eventSelectCols = `id, trade_id, event, detail, created_at`

func scanEventRows(rows pgx.Rows) ([]domain.TradeEvent, error) {
	var events []domain.TradeEvent
	for rows.Next() {
		var ev domain.TradeEvent
		var detailJSON []byte

		if err := rows.Scan(&ev.ID, &ev.TradeID, &ev.Event, &detailJSON, &ev.CreatedAt); err != nil {
			return nil, err
		}

		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &ev.Detail); err != nil {
				return nil, err
			}
		}

		events = append(events, ev)
	}
	return events, rows.Err()
}

// Record appends an event. A blank ID gets a fresh UUID and a zero CreatedAt
// is stamped with the current time, so callers only fill the milestone.
func (s *TradeEventStore) Record(ctx context.Context, ev domain.TradeEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	detailJSON, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	const query = `
		INSERT INTO trade_events (id, trade_id, event, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, ev.ID, ev.TradeID, ev.Event, detailJSON, ev.CreatedAt); err != nil {
		return fmt.Errorf("postgres: record trade event %s: %w", ev.Event, err)
	}
	return nil
}

// ListByTrade returns a trade's events, newest first.
func (s *TradeEventStore) ListByTrade(ctx context.Context, tradeID string, limit int) ([]domain.TradeEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + eventSelectCols + ` FROM trade_events
		WHERE trade_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, tradeID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events for trade %s: %w", tradeID, err)
	}
	return events, nil
}

// ListRecent returns the newest events across all trades.
func (s *TradeEventStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + eventSelectCols + ` FROM trade_events
		ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent events: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.TradeEventStore = (*TradeEventStore)(nil)
