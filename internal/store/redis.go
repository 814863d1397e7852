package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/yield-hedge/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for records that can no longer change: settlements, and hedges
// that are settled or cancelled. Everything the engine's guards depend on
// while a hedge is still live (open or matched hedges, stakes, ledger
// state) is always read from the primary, so a stale cache entry can
// never reach a guard.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store. ttl
// bounds how long terminal hedges stay cached; settlements never expire.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Apply(ctx context.Context, m *Mutation) error {
	if err := s.primary.Apply(ctx, m); err != nil {
		return err
	}

	keys := make([]string, 0, len(m.Hedges))
	for _, h := range m.Hedges {
		keys = append(keys, hedgeKey(h.ID))
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			slog.Warn("cache invalidation failed", "keys", keys, "err", err)
		}
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetHedge(ctx context.Context, id int64) (*model.Hedge, error) {
	var h model.Hedge
	if s.cached(ctx, hedgeKey(id), &h) {
		return &h, nil
	}

	hp, err := s.primary.GetHedge(ctx, id)
	if err != nil || hp == nil {
		return hp, err
	}
	if terminal(hp) {
		s.put(ctx, hedgeKey(id), hp, s.ttl)
	}
	return hp, nil
}

func (s *CachedStore) GetSettlement(ctx context.Context, hedgeID int64) (*model.Settlement, error) {
	var st model.Settlement
	if s.cached(ctx, settlementKey(hedgeID), &st) {
		return &st, nil
	}

	sp, err := s.primary.GetSettlement(ctx, hedgeID)
	if err != nil || sp == nil {
		return sp, err
	}
	s.put(ctx, settlementKey(hedgeID), sp, 0)
	return sp, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetStake(ctx context.Context, hedgeID int64, participant model.Identity) (*model.Stake, error) {
	return s.primary.GetStake(ctx, hedgeID, participant)
}

func (s *CachedStore) GetLedgerState(ctx context.Context) (model.LedgerState, error) {
	return s.primary.GetLedgerState(ctx)
}

func (s *CachedStore) ListHedges(ctx context.Context) ([]model.Hedge, error) {
	return s.primary.ListHedges(ctx)
}

func (s *CachedStore) GetTransfersByHedge(ctx context.Context, hedgeID int64) ([]model.Transfer, error) {
	return s.primary.GetTransfersByHedge(ctx, hedgeID)
}

func (s *CachedStore) GetTransfersByParticipant(ctx context.Context, participant model.Identity) ([]model.Transfer, error) {
	return s.primary.GetTransfersByParticipant(ctx, participant)
}

// --- Cache helpers ---

// terminal reports whether a hedge can never be written again.
func terminal(h *model.Hedge) bool {
	return h.Settled || h.Cancelled
}

func (s *CachedStore) cached(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) put(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "err", err)
	}
}

func hedgeKey(id int64) string { return fmt.Sprintf("hedge:%d", id) }
func settlementKey(id int64) string { return fmt.Sprintf("settlement:%d", id) }
