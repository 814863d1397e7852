package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/yield-hedge/internal/hedge"
	"github.com/atmx/yield-hedge/internal/model"
	"github.com/atmx/yield-hedge/internal/oracle"
	"github.com/atmx/yield-hedge/internal/store"
)

type cacheEnv struct {
	mr      *miniredis.Miniredis
	primary *store.MemoryStore
	cached  *store.CachedStore
}

// newCacheEnv wraps an in-memory primary with a miniredis-backed cache.
func newCacheEnv(t *testing.T) *cacheEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	primary := store.NewMemoryStore("owner")
	return &cacheEnv{
		mr:      mr,
		primary: primary,
		cached:  store.NewCachedStore(primary, rdb, 30*time.Second),
	}
}

func openHedge(id int64) model.Hedge {
	return model.Hedge{
		ID:             id,
		Creator:        "farmer",
		CropType:       "corn",
		Region:         "RegionX",
		YieldThreshold: 500,
		PayoutAmount:   10000,
		StakeAmount:    2000,
		SeasonStart:    1000,
		SeasonEnd:      2000,
		HedgeType:      model.Below,
		FeePaid:        50,
	}
}

func (env *cacheEnv) apply(t *testing.T, m *store.Mutation) {
	t.Helper()
	if err := env.cached.Apply(context.Background(), m); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
}

func TestCachedStore_LiveHedgeReadsPrimary(t *testing.T) {
	env := newCacheEnv(t)
	ctx := context.Background()
	env.apply(t, &store.Mutation{Hedges: []model.Hedge{openHedge(1)}})

	// A reader loads the open hedge just before a match commits.
	before, err := env.cached.GetHedge(ctx, 1)
	if err != nil || before == nil || before.Matched {
		t.Fatalf("unexpected pre-match read: %+v %v", before, err)
	}
	if env.mr.Exists("hedge:1") {
		t.Fatal("open hedge must not be cached")
	}

	matched := openHedge(1)
	matched.Matched = true
	matched.Counterparty = model.Matched("speculator")
	// Write the match straight to the primary, as a commit racing the
	// reader would, without going through the cache's invalidation.
	if err := env.primary.Apply(ctx, &store.Mutation{Hedges: []model.Hedge{matched}}); err != nil {
		t.Fatalf("primary apply failed: %v", err)
	}

	after, err := env.cached.GetHedge(ctx, 1)
	if err != nil || after == nil {
		t.Fatalf("post-match read failed: %v", err)
	}
	if !after.Matched {
		t.Error("cache served an unmatched hedge after the match committed")
	}
}

func TestCachedStore_StakesAndLedgerStateNotCached(t *testing.T) {
	env := newCacheEnv(t)
	ctx := context.Background()
	env.apply(t, &store.Mutation{
		Hedges:    []model.Hedge{openHedge(1)},
		PutStakes: []model.Stake{{HedgeID: 1, Participant: "farmer", Amount: 2000}},
		State:     &model.LedgerState{HedgeCounter: 1, TotalFees: 50, Owner: "owner"},
	})

	if st, _ := env.cached.GetStake(ctx, 1, "farmer"); st == nil || st.Amount != 2000 {
		t.Fatalf("unexpected stake: %+v", st)
	}
	if ls, _ := env.cached.GetLedgerState(ctx); ls.HedgeCounter != 1 {
		t.Fatalf("unexpected ledger state: %+v", ls)
	}
	if keys := env.mr.Keys(); len(keys) != 0 {
		t.Errorf("expected empty cache, got keys %v", keys)
	}

	// Changes behind the cache are visible immediately.
	if err := env.primary.Apply(ctx, &store.Mutation{
		DeleteStakes: []model.StakeKey{{HedgeID: 1, Participant: "farmer"}},
		State:        &model.LedgerState{HedgeCounter: 2, TotalFees: 100, Owner: "owner"},
	}); err != nil {
		t.Fatalf("primary apply failed: %v", err)
	}
	if st, _ := env.cached.GetStake(ctx, 1, "farmer"); st != nil {
		t.Errorf("expected refunded stake to be gone, got %+v", st)
	}
	if ls, _ := env.cached.GetLedgerState(ctx); ls.HedgeCounter != 2 || ls.TotalFees != 100 {
		t.Errorf("expected fresh ledger state, got %+v", ls)
	}
}

func TestCachedStore_TerminalHedgeCachedAndInvalidated(t *testing.T) {
	env := newCacheEnv(t)
	ctx := context.Background()
	cancelled := openHedge(1)
	cancelled.Cancelled = true
	env.apply(t, &store.Mutation{Hedges: []model.Hedge{cancelled}})

	if h, _ := env.cached.GetHedge(ctx, 1); h == nil || !h.Cancelled {
		t.Fatalf("unexpected hedge: %+v", h)
	}
	if !env.mr.Exists("hedge:1") {
		t.Fatal("expected cancelled hedge to be cached")
	}
	if ttl := env.mr.TTL("hedge:1"); ttl != 30*time.Second {
		t.Errorf("expected 30s TTL, got %s", ttl)
	}

	// Any write to the hedge drops the cached copy.
	env.apply(t, &store.Mutation{Hedges: []model.Hedge{cancelled}})
	if env.mr.Exists("hedge:1") {
		t.Error("expected Apply to invalidate hedge:1")
	}
}

func TestCachedStore_SettlementCachedWithoutTTL(t *testing.T) {
	env := newCacheEnv(t)
	ctx := context.Background()
	env.apply(t, &store.Mutation{
		Hedges:      []model.Hedge{openHedge(1)},
		Settlements: []model.Settlement{{HedgeID: 1, ActualYield: 450, Winner: "farmer", Payout: 10000, Timestamp: 2000}},
	})

	s, err := env.cached.GetSettlement(ctx, 1)
	if err != nil || s == nil || s.Winner != "farmer" {
		t.Fatalf("unexpected settlement: %+v %v", s, err)
	}
	if !env.mr.Exists("settlement:1") {
		t.Fatal("expected settlement to be cached")
	}
	if ttl := env.mr.TTL("settlement:1"); ttl != 0 {
		t.Errorf("expected no TTL on settlement, got %s", ttl)
	}

	env.mr.FastForward(24 * time.Hour)
	if again, _ := env.cached.GetSettlement(ctx, 1); again == nil || *again != *s {
		t.Errorf("cached settlement changed: %+v", again)
	}
}

func TestCachedStore_AbsentRecordsNotCached(t *testing.T) {
	env := newCacheEnv(t)
	ctx := context.Background()

	if h, err := env.cached.GetHedge(ctx, 99); h != nil || err != nil {
		t.Errorf("expected nil hedge, got %+v %v", h, err)
	}
	if s, err := env.cached.GetSettlement(ctx, 99); s != nil || err != nil {
		t.Errorf("expected nil settlement, got %+v %v", s, err)
	}
	if keys := env.mr.Keys(); len(keys) != 0 {
		t.Errorf("negative results were cached: %v", keys)
	}
}

func TestCachedStore_RedisOutageFallsBackToPrimary(t *testing.T) {
	env := newCacheEnv(t)
	ctx := context.Background()
	env.mr.Close()

	// Invalidation failure is logged, not returned: the primary committed.
	env.apply(t, &store.Mutation{Hedges: []model.Hedge{openHedge(1)}})
	if h, err := env.cached.GetHedge(ctx, 1); err != nil || h == nil {
		t.Errorf("expected primary read during outage, got %+v %v", h, err)
	}
}

func TestCachedStore_PrimaryErrorsPropagate(t *testing.T) {
	env := newCacheEnv(t)
	err := env.cached.Apply(context.Background(), &store.Mutation{
		DeleteStakes: []model.StakeKey{{HedgeID: 1, Participant: "nobody"}},
	})
	if !errors.Is(err, store.ErrStakeMissing) {
		t.Errorf("expected ErrStakeMissing, got %v", err)
	}
}

func TestCachedStore_EngineRejectsSecondMatch(t *testing.T) {
	env := newCacheEnv(t)
	ctx := context.Background()
	engine := hedge.NewEngine(env.cached, oracle.NewStatic(), hedge.DefaultParams(), nil)

	id, err := engine.CreateHedge(ctx, model.ExecContext{Caller: "farmer", Clock: 10}, hedge.CreateParams{
		CropType: "corn", Region: "RegionX", Threshold: 500,
		PayoutAmount: 10000, StakeAmount: 2000,
		SeasonStart: 1000, SeasonEnd: 2000, HedgeType: "below",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// Warm any cache entry a reader could have left behind.
	if _, err := engine.GetHedge(ctx, id); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := engine.MatchHedge(ctx, model.ExecContext{Caller: "speculator", Clock: 20}, id); err != nil {
		t.Fatalf("match failed: %v", err)
	}

	err = engine.MatchHedge(ctx, model.ExecContext{Caller: "another", Clock: 30}, id)
	if !errors.Is(err, hedge.ErrAlreadyMatched) {
		t.Fatalf("expected ALREADY_MATCHED, got %v", err)
	}
	if fees, _ := engine.TotalFees(ctx); fees != 100 {
		t.Errorf("expected two fees (100), got %d", fees)
	}

	next, err := engine.CreateHedge(ctx, model.ExecContext{Caller: "farmer", Clock: 40}, hedge.CreateParams{
		CropType: "corn", Region: "RegionX", Threshold: 500,
		PayoutAmount: 10000, StakeAmount: 2000,
		SeasonStart: 1000, SeasonEnd: 2000, HedgeType: "below",
	})
	if err != nil || next != id+1 {
		t.Errorf("expected id %d, got %d (%v)", id+1, next, err)
	}
}
