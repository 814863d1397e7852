package hedge

import (
	"context"

	"github.com/atmx/yield-hedge/internal/metrics"
	"github.com/atmx/yield-hedge/internal/model"
)

// Read accessors never take the engine lock and never write. Missing
// records come back as nil with a nil error.

func (e *Engine) GetHedge(ctx context.Context, hedgeID int64) (*model.Hedge, error) {
	return e.store.GetHedge(ctx, hedgeID)
}

func (e *Engine) GetSettlement(ctx context.Context, hedgeID int64) (*model.Settlement, error) {
	return e.store.GetSettlement(ctx, hedgeID)
}

func (e *Engine) GetStake(ctx context.Context, hedgeID int64, participant model.Identity) (*model.Stake, error) {
	return e.store.GetStake(ctx, hedgeID, participant)
}

// LedgerState returns the fee total, pause flag, id counter and owner.
func (e *Engine) LedgerState(ctx context.Context) (model.LedgerState, error) {
	return e.store.GetLedgerState(ctx)
}

func (e *Engine) TotalFees(ctx context.Context) (int64, error) {
	st, err := e.store.GetLedgerState(ctx)
	return st.TotalFees, err
}

func (e *Engine) IsPaused(ctx context.Context) (bool, error) {
	st, err := e.store.GetLedgerState(ctx)
	return st.Paused, err
}

func (e *Engine) HedgeCounter(ctx context.Context) (int64, error) {
	st, err := e.store.GetLedgerState(ctx)
	return st.HedgeCounter, err
}

func (e *Engine) Owner(ctx context.Context) (model.Identity, error) {
	st, err := e.store.GetLedgerState(ctx)
	return st.Owner, err
}

// ListHedges returns hedges in id order, optionally restricted to one
// status. An empty status returns everything.
func (e *Engine) ListHedges(ctx context.Context, status model.Status) ([]model.Hedge, error) {
	all, err := e.store.ListHedges(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	filtered := all[:0]
	for _, h := range all {
		if h.Status() == status {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

// Transfers returns the value-movement journal of one hedge.
func (e *Engine) Transfers(ctx context.Context, hedgeID int64) ([]model.Transfer, error) {
	return e.store.GetTransfersByHedge(ctx, hedgeID)
}

// TransfersFor returns every journal entry touching a participant.
func (e *Engine) TransfersFor(ctx context.Context, participant model.Identity) ([]model.Transfer, error) {
	return e.store.GetTransfersByParticipant(ctx, participant)
}

// SyncMetrics recomputes the status, escrow and fee-pool gauges from the
// store. Call once at startup when the store already holds data.
func (e *Engine) SyncMetrics(ctx context.Context) error {
	hedges, err := e.store.ListHedges(ctx)
	if err != nil {
		return err
	}
	state, err := e.store.GetLedgerState(ctx)
	if err != nil {
		return err
	}

	counts := map[model.Status]int{
		model.StatusOpen: 0, model.StatusMatched: 0, model.StatusSettled: 0, model.StatusCancelled: 0,
	}
	var escrowed int64
	for _, h := range hedges {
		s := h.Status()
		counts[s]++
		switch s {
		case model.StatusOpen:
			escrowed += h.StakeAmount
		case model.StatusMatched:
			escrowed += 2 * h.StakeAmount
		}
	}
	for s, n := range counts {
		metrics.HedgesByStatus.WithLabelValues(string(s)).Set(float64(n))
	}
	metrics.EscrowedValue.Set(float64(escrowed))
	metrics.FeePool.Set(float64(state.TotalFees))
	return nil
}
