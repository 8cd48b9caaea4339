// Package ledger owns the engine's single persisted record. A Manager wraps
// the in-memory Ledger value behind a mutex and an injected persistence port:
// every mutation runs atomically and is followed by a full rewrite of the
// stored record. The mutex is what serializes settlement credits against
// placement debits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	saveAttempts = 3
	saveBackoff  = 200 * time.Millisecond
)

// Manager guards a Ledger value. Exactly one Manager instance may own a given
// persisted record; there is deliberately no cross-process lock.
type Manager struct {
	mu     sync.Mutex
	led    *domain.Ledger
	store  domain.LedgerStore
	logger *slog.Logger
}

// Open loads the ledger from the store, creating a fresh one with the given
// initial balance when no record exists yet.
func Open(ctx context.Context, store domain.LedgerStore, initialBalance float64, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		store:  store,
		logger: logger.With(slog.String("component", "ledger")),
	}

	led, err := store.Load(ctx)
	switch {
	case err == nil:
		m.led = led
	case errors.Is(err, domain.ErrNotFound):
		m.led = domain.NewLedger(initialBalance, time.Now())
		if err := store.Save(ctx, m.led); err != nil {
			return nil, fmt.Errorf("ledger: save initial record: %w", err)
		}
		m.logger.InfoContext(ctx, "initialized fresh ledger",
			slog.Float64("balance", initialBalance),
		)
	default:
		return nil, fmt.Errorf("ledger: load: %w", err)
	}

	return m, nil
}

// Adopt wraps an already-built ledger value, persisting it once. Used when a
// snapshot is restored from archive storage.
func Adopt(ctx context.Context, store domain.LedgerStore, led *domain.Ledger, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		led:    led,
		store:  store,
		logger: logger.With(slog.String("component", "ledger")),
	}
	if err := store.Save(ctx, led); err != nil {
		return nil, fmt.Errorf("ledger: save adopted record: %w", err)
	}
	return m, nil
}

// View runs fn with shared access to the ledger. fn must not retain the
// pointer or mutate through it.
func (m *Manager) View(fn func(led *domain.Ledger)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.led)
}

// Update applies fn atomically and rewrites the whole record. When fn returns
// an error the ledger is untouched and nothing is persisted.
//
// A persistence failure after fn succeeded must not lose track of committed
// capital: the mutation stays applied in memory, the save is retried, and on
// final failure the incident lands in the ledger's own bounded error log (it
// is written out with the next successful save). The returned error wraps
// domain.ErrPersistFailed in that case.
func (m *Manager) Update(ctx context.Context, fn func(led *domain.Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := fn(m.led); err != nil {
		return err
	}
	return m.save(ctx)
}

// save writes the full record, retrying transient failures, then escalating.
func (m *Manager) save(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		lastErr = m.store.Save(ctx, m.led)
		if lastErr == nil {
			return nil
		}
		m.logger.WarnContext(ctx, "ledger save failed",
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt < saveAttempts {
			select {
			case <-ctx.Done():
				attempt = saveAttempts
			case <-time.After(saveBackoff):
			}
		}
	}

	m.led.RecordError("", fmt.Sprintf("ledger save failed after %d attempts: %v", saveAttempts, lastErr), time.Now())
	m.logger.ErrorContext(ctx, "ledger save escalated; in-memory state retained",
		slog.String("error", lastErr.Error()),
	)
	return fmt.Errorf("ledger: save after %d attempts: %v: %w", saveAttempts, lastErr, domain.ErrPersistFailed)
}

// Snapshot returns a deep copy of the current ledger for archival or
// reporting without holding the lock during serialization.
func (m *Manager) Snapshot() *domain.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *m.led
	cp.Trades = make([]*domain.Trade, len(m.led.Trades))
	for i, t := range m.led.Trades {
		tc := *t
		cp.Trades[i] = &tc
	}
	cp.Errors = append([]domain.ErrorEntry(nil), m.led.Errors...)
	return &cp
}
