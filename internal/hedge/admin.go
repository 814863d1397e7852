package hedge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/yield-hedge/internal/metrics"
	"github.com/atmx/yield-hedge/internal/model"
	"github.com/atmx/yield-hedge/internal/store"
)

// Pause stops new hedges from being created. Matching, settlement and
// cancellation stay available. Owner only.
func (e *Engine) Pause(ctx context.Context, ec model.ExecContext) (err error) {
	defer observe(opPause, time.Now(), &err)
	return e.setPaused(ctx, ec, true)
}

// Unpause re-enables hedge creation. Owner only.
func (e *Engine) Unpause(ctx context.Context, ec model.ExecContext) (err error) {
	defer observe(opUnpause, time.Now(), &err)
	return e.setPaused(ctx, ec, false)
}

func (e *Engine) setPaused(ctx context.Context, ec model.ExecContext, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.GetLedgerState(ctx)
	if err != nil {
		return fmt.Errorf("load ledger state: %w", err)
	}
	if err := requireOwner(state, ec.Caller)(); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}

	next := state
	next.Paused = paused
	if err := e.store.Apply(ctx, &store.Mutation{State: &next}); err != nil {
		return fmt.Errorf("commit pause flag: %w", err)
	}

	slog.Info("pause flag changed", "paused", paused, "caller", ec.Caller)
	evt := model.EventUnpaused
	if paused {
		evt = model.EventPaused
	}
	e.publish(model.Event{Type: evt, Actor: ec.Caller, Clock: ec.Clock})
	return nil
}

// WithdrawFees moves amount out of the fee pool to the owner.
func (e *Engine) WithdrawFees(ctx context.Context, ec model.ExecContext, amount int64) (err error) {
	defer observe(opWithdraw, time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.GetLedgerState(ctx)
	if err != nil {
		return fmt.Errorf("load ledger state: %w", err)
	}

	if err := firstFailure(
		requireOwner(state, ec.Caller),
		require(amount >= 0, ErrInvalidParams),
		require(amount <= state.TotalFees, ErrInsufficientStake),
	); err != nil {
		return fmt.Errorf("withdraw fees: %w", err)
	}

	next := state
	next.TotalFees -= amount

	w := newPending(e.store, ec.Clock)
	w.m.State = &next
	w.transfer(0, model.FeePoolAccount, state.Owner, amount, model.TransferFeeWithdrawal)

	if err := e.store.Apply(ctx, w.m); err != nil {
		return fmt.Errorf("commit withdrawal: %w", err)
	}

	slog.Info("fees withdrawn",
		"owner", state.Owner,
		"amount", amount,
		"remaining", next.TotalFees,
	)
	metrics.FeePool.Set(float64(next.TotalFees))
	e.publish(model.Event{Type: model.EventFeesWithdrawn, Actor: ec.Caller, Amount: amount, Clock: ec.Clock})
	return nil
}
