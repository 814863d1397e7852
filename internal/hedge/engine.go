// Package hedge implements the yield-hedge lifecycle: creation, matching,
// cancellation and oracle-driven settlement, plus the owner's admin
// controls.
//
// Every mutating operation takes the engine lock, loads what it needs,
// runs its guards in a fixed order and then commits one store.Mutation.
// A failing guard returns before anything is written.
package hedge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/yield-hedge/internal/fee"
	"github.com/atmx/yield-hedge/internal/metrics"
	"github.com/atmx/yield-hedge/internal/model"
	"github.com/atmx/yield-hedge/internal/oracle"
	"github.com/atmx/yield-hedge/internal/store"
	"github.com/atmx/yield-hedge/internal/yield"
)

const (
	// DefaultMinStake is the smallest stake a creator may post.
	DefaultMinStake int64 = 1000

	// DefaultMaxDuration is the longest season window, in clock units
	// (one year of ten-minute blocks).
	DefaultMaxDuration int64 = 52560
)

// Params are the engine's fixed economic parameters.
type Params struct {
	MinStake    int64
	MaxDuration int64
	Fees        fee.Calculator
}

// DefaultParams returns the production parameters.
func DefaultParams() Params {
	return Params{
		MinStake:    DefaultMinStake,
		MaxDuration: DefaultMaxDuration,
		Fees:        fee.NewCalculator(fee.DefaultPermille),
	}
}

// Publisher receives lifecycle events after they commit.
type Publisher interface {
	Publish(evt model.Event)
}

// Engine is the hedge lifecycle and settlement state machine. It is the
// only writer of its store. The mutex is the serialization boundary: one
// mutating operation runs to completion before the next begins. For
// several instances sharing one database, replace it with a distributed
// lock.
type Engine struct {
	store  store.Store
	oracle oracle.Client
	params Params
	pub    Publisher // optional
	mu     sync.Mutex
}

// NewEngine creates an engine. Pass nil for pub if events are not needed.
func NewEngine(st store.Store, oc oracle.Client, params Params, pub Publisher) *Engine {
	if params.Fees.Permille <= 0 {
		params.Fees = fee.NewCalculator(fee.DefaultPermille)
	}
	return &Engine{
		store:  st,
		oracle: oc,
		params: params,
		pub:    pub,
	}
}

// Params returns the engine's economic parameters.
func (e *Engine) Params() Params {
	return e.params
}

// CreateParams are the creator-supplied terms of a new hedge. HedgeType and
// ThresholdText are raw input so that bad values are reported in guard
// order. ThresholdText, when set, is decimal text such as "4.50" and
// replaces Threshold.
type CreateParams struct {
	CropType      string
	Region        string
	Threshold     int64
	ThresholdText string
	PayoutAmount  int64
	StakeAmount   int64
	SeasonStart   int64
	SeasonEnd     int64
	HedgeType     string
}

// CreateHedge opens a new hedge for ec.Caller and escrows their stake.
func (e *Engine) CreateHedge(ctx context.Context, ec model.ExecContext, p CreateParams) (id int64, err error) {
	defer observe(opCreate, time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.GetLedgerState(ctx)
	if err != nil {
		return 0, fmt.Errorf("load ledger state: %w", err)
	}

	hedgeType, typeErr := model.ParseHedgeType(p.HedgeType)
	threshold, thresholdErr := p.Threshold, error(nil)
	if p.ThresholdText != "" {
		threshold, thresholdErr = yield.Parse(p.ThresholdText)
	}
	validWindow := p.SeasonStart >= 0 && p.SeasonEnd > p.SeasonStart &&
		p.SeasonEnd-p.SeasonStart <= e.params.MaxDuration

	if err := firstFailure(
		require(!state.Paused, ErrInvalidState),
		require(p.StakeAmount >= e.params.MinStake, ErrInsufficientStake),
		require(validWindow, ErrInvalidParams),
		require(typeErr == nil, ErrInvalidParams),
		require(p.PayoutAmount > 0, ErrInvalidParams),
		require(thresholdErr == nil && threshold >= 0, ErrInvalidParams),
	); err != nil {
		return 0, fmt.Errorf("create hedge: %w", err)
	}

	charged := e.params.Fees.Fee(p.PayoutAmount)
	id = state.HedgeCounter + 1

	h := model.Hedge{
		ID:             id,
		Creator:        ec.Caller,
		CropType:       p.CropType,
		Region:         p.Region,
		YieldThreshold: threshold,
		PayoutAmount:   p.PayoutAmount,
		StakeAmount:    p.StakeAmount,
		SeasonStart:    p.SeasonStart,
		SeasonEnd:      p.SeasonEnd,
		HedgeType:      hedgeType,
		FeePaid:        charged,
	}

	next := state
	next.HedgeCounter = id
	next.TotalFees += charged

	w := newPending(e.store, ec.Clock)
	w.m.Hedges = append(w.m.Hedges, h)
	w.m.State = &next
	w.recordStake(id, ec.Caller, p.StakeAmount)
	w.transfer(id, ec.Caller, model.FeePoolAccount, charged, model.TransferFee)

	if err := e.store.Apply(ctx, w.m); err != nil {
		return 0, fmt.Errorf("commit hedge %d: %w", id, err)
	}

	slog.Info("hedge created",
		"hedge_id", id,
		"creator", ec.Caller,
		"crop", p.CropType,
		"region", p.Region,
		"type", hedgeType,
		"threshold", threshold,
		"payout", p.PayoutAmount,
		"stake", p.StakeAmount,
		"fee", charged,
		"season_start", p.SeasonStart,
		"season_end", p.SeasonEnd,
	)
	metrics.HedgesByStatus.WithLabelValues(string(model.StatusOpen)).Inc()
	metrics.EscrowedValue.Add(float64(p.StakeAmount))
	metrics.FeePool.Set(float64(next.TotalFees))
	e.publish(model.Event{
		Type:     model.EventHedgeCreated,
		HedgeID:  id,
		CropType: p.CropType,
		Region:   p.Region,
		Actor:    ec.Caller,
		Amount:   p.PayoutAmount,
		Clock:    ec.Clock,
	})
	return id, nil
}

// MatchHedge takes the other side of an open hedge before its season
// starts. The counterparty stakes the same amount as the creator and pays
// the same fee.
func (e *Engine) MatchHedge(ctx context.Context, ec model.ExecContext, hedgeID int64) (err error) {
	defer observe(opMatch, time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.loadHedge(ctx, hedgeID)
	if err != nil {
		return fmt.Errorf("match hedge %d: %w", hedgeID, err)
	}

	if err := firstFailure(
		require(!h.Matched, ErrAlreadyMatched),
		require(!h.Settled, ErrAlreadySettled),
		require(!h.Cancelled, ErrInvalidState),
		require(ec.Caller != h.Creator, ErrInvalidCounterparty),
		require(ec.Clock < h.SeasonStart, ErrHedgeExpired),
	); err != nil {
		return fmt.Errorf("match hedge %d: %w", hedgeID, err)
	}

	state, err := e.store.GetLedgerState(ctx)
	if err != nil {
		return fmt.Errorf("load ledger state: %w", err)
	}

	charged := e.params.Fees.Fee(h.PayoutAmount)
	next := state
	next.TotalFees += charged

	h.Counterparty = model.Matched(ec.Caller)
	h.Matched = true
	h.FeePaid += charged

	w := newPending(e.store, ec.Clock)
	w.m.Hedges = append(w.m.Hedges, *h)
	w.m.State = &next
	w.recordStake(hedgeID, ec.Caller, h.StakeAmount)
	w.transfer(hedgeID, ec.Caller, model.FeePoolAccount, charged, model.TransferFee)

	if err := e.store.Apply(ctx, w.m); err != nil {
		return fmt.Errorf("commit match %d: %w", hedgeID, err)
	}

	slog.Info("hedge matched",
		"hedge_id", hedgeID,
		"creator", h.Creator,
		"counterparty", ec.Caller,
		"stake", h.StakeAmount,
		"fee", charged,
		"fee_paid", h.FeePaid,
	)
	metrics.HedgesByStatus.WithLabelValues(string(model.StatusOpen)).Dec()
	metrics.HedgesByStatus.WithLabelValues(string(model.StatusMatched)).Inc()
	metrics.EscrowedValue.Add(float64(h.StakeAmount))
	metrics.FeePool.Set(float64(next.TotalFees))
	e.publish(model.Event{
		Type:     model.EventHedgeMatched,
		HedgeID:  hedgeID,
		CropType: h.CropType,
		Region:   h.Region,
		Actor:    ec.Caller,
		Clock:    ec.Clock,
	})
	return nil
}

// CancelHedge lets the creator withdraw an unmatched hedge. The stake is
// refunded; the creation fee is not.
func (e *Engine) CancelHedge(ctx context.Context, ec model.ExecContext, hedgeID int64) (err error) {
	defer observe(opCancel, time.Now(), &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.loadHedge(ctx, hedgeID)
	if err != nil {
		return fmt.Errorf("cancel hedge %d: %w", hedgeID, err)
	}

	if err := firstFailure(
		require(ec.Caller == h.Creator, ErrUnauthorized),
		require(!h.Matched, ErrCancellationNotAllowed),
		require(!h.Settled, ErrAlreadySettled),
		require(!h.Cancelled, ErrInvalidState),
	); err != nil {
		return fmt.Errorf("cancel hedge %d: %w", hedgeID, err)
	}

	w := newPending(e.store, ec.Clock)
	refunded, err := w.refundStake(ctx, hedgeID, h.Creator)
	if err != nil {
		return fmt.Errorf("cancel hedge %d: %w", hedgeID, err)
	}
	h.Cancelled = true
	w.m.Hedges = append(w.m.Hedges, *h)

	if err := e.store.Apply(ctx, w.m); err != nil {
		return fmt.Errorf("commit cancel %d: %w", hedgeID, err)
	}

	slog.Info("hedge cancelled",
		"hedge_id", hedgeID,
		"creator", h.Creator,
		"refunded", refunded,
	)
	metrics.HedgesByStatus.WithLabelValues(string(model.StatusOpen)).Dec()
	metrics.HedgesByStatus.WithLabelValues(string(model.StatusCancelled)).Inc()
	metrics.EscrowedValue.Sub(float64(refunded))
	e.publish(model.Event{
		Type:     model.EventHedgeCancelled,
		HedgeID:  hedgeID,
		CropType: h.CropType,
		Region:   h.Region,
		Actor:    ec.Caller,
		Amount:   refunded,
		Clock:    ec.Clock,
	})
	return nil
}

// loadHedge returns the hedge or ErrNotFound.
func (e *Engine) loadHedge(ctx context.Context, hedgeID int64) (*model.Hedge, error) {
	h, err := e.store.GetHedge(ctx, hedgeID)
	if err != nil {
		return nil, fmt.Errorf("load hedge: %w", err)
	}
	if h == nil {
		return nil, ErrNotFound
	}
	return h, nil
}

func (e *Engine) publish(evt model.Event) {
	if e.pub != nil {
		e.pub.Publish(evt)
	}
}

const (
	opCreate   = "create_hedge"
	opMatch    = "match_hedge"
	opSettle   = "settle_hedge"
	opCancel   = "cancel_hedge"
	opPause    = "pause"
	opUnpause  = "unpause"
	opWithdraw = "withdraw_fees"
)

// observe records the outcome and latency of an operation.
func observe(op string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		if c, ok := CodeOf(*err); ok {
			outcome = c.Name()
		} else {
			outcome = "internal"
			slog.Error("engine operation failed", "op", op, "err", *err)
		}
	}
	metrics.OperationsTotal.WithLabelValues(op, outcome).Inc()
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
