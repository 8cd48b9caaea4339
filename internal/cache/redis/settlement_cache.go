package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	// Resolved statuses never change, so they live long. Unresolved ones
	// expire quickly to keep the reconciler's view fresh.
	defaultResolvedTTL   = 24 * time.Hour
	defaultUnresolvedTTL = 30 * time.Second
)

// SettlementCache implements domain.SettlementCache on Redis. Entries are
// JSON-encoded settlement statuses keyed by venue and market.
type SettlementCache struct {
	rdb           *redis.Client
	resolvedTTL   time.Duration
	unresolvedTTL time.Duration
}

// NewSettlementCache creates a SettlementCache backed by the given Client.
// Non-positive TTLs select 24h for resolved and 30s for unresolved entries.
func NewSettlementCache(c *Client, resolvedTTL, unresolvedTTL time.Duration) *SettlementCache {
	if resolvedTTL <= 0 {
		resolvedTTL = defaultResolvedTTL
	}
	if unresolvedTTL <= 0 {
		unresolvedTTL = defaultUnresolvedTTL
	}
	return &SettlementCache{
		rdb:           c.Underlying(),
		resolvedTTL:   resolvedTTL,
		unresolvedTTL: unresolvedTTL,
	}
}

func settlementKey(venue domain.Venue, marketID string) string {
	return "settlement:" + string(venue) + ":" + marketID
}

// Get returns the cached settlement status for a market, with a hit flag.
// A missing key is a miss, not an error.
func (sc *SettlementCache) Get(ctx context.Context, venue domain.Venue, marketID string) (domain.SettlementStatus, bool, error) {
	data, err := sc.rdb.Get(ctx, settlementKey(venue, marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SettlementStatus{}, false, nil
	}
	if err != nil {
		return domain.SettlementStatus{}, false, fmt.Errorf("redis: settlement get %s/%s: %w", venue, marketID, err)
	}

	var st domain.SettlementStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.SettlementStatus{}, false, fmt.Errorf("redis: settlement decode %s/%s: %w", venue, marketID, err)
	}
	return st, true, nil
}

// Set stores a settlement status. Resolved statuses get the long TTL.
func (sc *SettlementCache) Set(ctx context.Context, venue domain.Venue, marketID string, st domain.SettlementStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: settlement encode %s/%s: %w", venue, marketID, err)
	}

	ttl := sc.unresolvedTTL
	if st.Resolved {
		ttl = sc.resolvedTTL
	}

	if err := sc.rdb.Set(ctx, settlementKey(venue, marketID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: settlement set %s/%s: %w", venue, marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SettlementCache = (*SettlementCache)(nil)
