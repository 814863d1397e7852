package hedge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/yield-hedge/internal/metrics"
	"github.com/atmx/yield-hedge/internal/model"
)

// SettleHedge resolves a matched hedge against the oracle's yield and
// returns the winner. Anyone may call it; ec.Caller is only logged.
//
// The oracle is queried before the already-settled and season checks, so
// an unavailable oracle reports ErrOracleFail even for hedges that would
// otherwise be rejected later. A failed query changes nothing; settle
// again once the oracle recovers.
func (e *Engine) SettleHedge(ctx context.Context, ec model.ExecContext, hedgeID int64) (winner model.Identity, err error) {
	defer observe(opSettle, time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.loadHedge(ctx, hedgeID)
	if err != nil {
		return "", fmt.Errorf("settle hedge %d: %w", hedgeID, err)
	}
	if !h.Matched {
		return "", fmt.Errorf("settle hedge %d: %w", hedgeID, ErrInvalidState)
	}

	actual, err := e.queryOracle(ctx, h)
	if err != nil {
		return "", fmt.Errorf("settle hedge %d: %w: %v", hedgeID, ErrOracleFail, err)
	}

	counterparty, hasCounterparty := h.Counterparty.Get()
	if err := firstFailure(
		require(!h.Settled, ErrAlreadySettled),
		require(ec.Clock >= h.SeasonEnd, ErrSeasonNotEnded),
		require(hasCounterparty, ErrInvalidCounterparty),
	); err != nil {
		return "", fmt.Errorf("settle hedge %d: %w", hedgeID, err)
	}

	creatorWins := conditionMet(h.HedgeType, actual, h.YieldThreshold)
	winner, loser := counterparty, h.Creator
	if creatorWins {
		winner, loser = h.Creator, counterparty
	}

	w := newPending(e.store, ec.Clock)
	w.transfer(hedgeID, loser, winner, h.PayoutAmount, model.TransferPayout)
	creatorRefund, err := w.refundStake(ctx, hedgeID, h.Creator)
	if err != nil {
		return "", fmt.Errorf("settle hedge %d: creator stake: %w", hedgeID, err)
	}
	counterpartyRefund, err := w.refundStake(ctx, hedgeID, counterparty)
	if err != nil {
		return "", fmt.Errorf("settle hedge %d: counterparty stake: %w", hedgeID, err)
	}

	w.m.Settlements = append(w.m.Settlements, model.Settlement{
		HedgeID:     hedgeID,
		ActualYield: actual,
		Winner:      winner,
		Payout:      h.PayoutAmount,
		Timestamp:   ec.Clock,
	})
	h.Settled = true
	w.m.Hedges = append(w.m.Hedges, *h)

	if err := e.store.Apply(ctx, w.m); err != nil {
		return "", fmt.Errorf("commit settlement %d: %w", hedgeID, err)
	}

	side := "counterparty"
	if creatorWins {
		side = "creator"
	}
	slog.Info("hedge settled",
		"hedge_id", hedgeID,
		"caller", ec.Caller,
		"actual_yield", actual,
		"threshold", h.YieldThreshold,
		"type", h.HedgeType,
		"winner", winner,
		"winner_side", side,
		"payout", h.PayoutAmount,
	)
	metrics.SettlementsTotal.WithLabelValues(side, string(h.HedgeType)).Inc()
	metrics.HedgesByStatus.WithLabelValues(string(model.StatusMatched)).Dec()
	metrics.HedgesByStatus.WithLabelValues(string(model.StatusSettled)).Inc()
	metrics.EscrowedValue.Sub(float64(creatorRefund + counterpartyRefund))
	e.publish(model.Event{
		Type:     model.EventHedgeSettled,
		HedgeID:  hedgeID,
		CropType: h.CropType,
		Region:   h.Region,
		Actor:    ec.Caller,
		Winner:   winner,
		Amount:   h.PayoutAmount,
		Clock:    ec.Clock,
	})
	return winner, nil
}

// conditionMet reports whether the creator's payout condition holds.
// Equality never meets the condition in either direction, so ties go to
// the counterparty.
func conditionMet(t model.HedgeType, actual, threshold int64) bool {
	if t == model.Below {
		return actual < threshold
	}
	return actual > threshold
}

func (e *Engine) queryOracle(ctx context.Context, h *model.Hedge) (int64, error) {
	start := time.Now()
	y, err := e.oracle.GetYield(ctx, h.CropType, h.Region, h.SeasonEnd)
	metrics.OracleLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OracleFailures.Inc()
		slog.Warn("yield oracle query failed",
			"hedge_id", h.ID,
			"crop", h.CropType,
			"region", h.Region,
			"season_end", h.SeasonEnd,
			"err", err,
		)
		return 0, err
	}
	return y, nil
}
