// Package model defines the core domain types shared across the hedge engine.
// Amounts are integers in the smallest currency unit; yields and thresholds
// are fixed-point integers (see package yield for the scale).
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Identity names a participant: a creator, a counterparty, or the owner.
type Identity string

// Counterparty is the optional second party of a hedge. The zero value is
// absent; there is no sentinel identity.
type Counterparty struct {
	id      Identity
	present bool
}

// Matched returns a present counterparty.
func Matched(id Identity) Counterparty {
	return Counterparty{id: id, present: true}
}

// Get returns the counterparty identity and whether one is present.
func (c Counterparty) Get() (Identity, bool) {
	return c.id, c.present
}

// Present reports whether the hedge has been matched by someone.
func (c Counterparty) Present() bool { return c.present }

func (c Counterparty) MarshalJSON() ([]byte, error) {
	if !c.present {
		return []byte("null"), nil
	}
	return json.Marshal(string(c.id))
}

func (c *Counterparty) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Counterparty{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("counterparty: %w", err)
	}
	*c = Matched(Identity(s))
	return nil
}

// HedgeType selects the direction of the payout condition.
type HedgeType string

const (
	// Below pays the creator when the actual yield is strictly below the threshold.
	Below HedgeType = "below"
	// Above pays the creator when the actual yield is strictly above the threshold.
	Above HedgeType = "above"
)

var ErrInvalidHedgeType = errors.New("model: hedge type must be below or above")

// ParseHedgeType accepts "below" or "above" in any letter case.
func ParseHedgeType(s string) (HedgeType, error) {
	switch HedgeType(strings.ToLower(strings.TrimSpace(s))) {
	case Below:
		return Below, nil
	case Above:
		return Above, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHedgeType, s)
}

// Status is the lifecycle state of a hedge, derived from its flags.
type Status string

const (
	StatusOpen      Status = "open"
	StatusMatched   Status = "matched"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// Hedge is a staked, conditional payout agreement between a creator and an
// optional counterparty. Hedges are never deleted.
type Hedge struct {
	ID             int64        `json:"id"`
	Creator        Identity     `json:"creator"`
	CropType       string       `json:"crop_type"`
	Region         string       `json:"region"`
	YieldThreshold int64        `json:"yield_threshold"`
	PayoutAmount   int64        `json:"payout_amount"`
	StakeAmount    int64        `json:"stake_amount"`
	Counterparty   Counterparty `json:"counterparty"`
	SeasonStart    int64        `json:"season_start"`
	SeasonEnd      int64        `json:"season_end"`
	Settled        bool         `json:"settled"`
	Matched        bool         `json:"matched"`
	Cancelled      bool         `json:"cancelled"`
	HedgeType      HedgeType    `json:"hedge_type"`
	FeePaid        int64        `json:"fee_paid"`
}

// Status derives the lifecycle state. Settled and cancelled are terminal.
func (h *Hedge) Status() Status {
	switch {
	case h.Settled:
		return StatusSettled
	case h.Cancelled:
		return StatusCancelled
	case h.Matched:
		return StatusMatched
	default:
		return StatusOpen
	}
}

// StakeKey identifies one participant's escrowed stake in one hedge.
type StakeKey struct {
	HedgeID     int64    `json:"hedge_id"`
	Participant Identity `json:"participant"`
}

// Stake is value escrowed by a participant as collateral for a hedge.
type Stake struct {
	HedgeID     int64    `json:"hedge_id"`
	Participant Identity `json:"participant"`
	Amount      int64    `json:"amount"`
}

// Key returns the stake's store key.
func (s Stake) Key() StakeKey {
	return StakeKey{HedgeID: s.HedgeID, Participant: s.Participant}
}

// Settlement is the immutable, once-only record of a hedge's outcome.
type Settlement struct {
	HedgeID     int64    `json:"hedge_id"`
	ActualYield int64    `json:"actual_yield"`
	Winner      Identity `json:"winner"`
	Payout      int64    `json:"payout"`
	Timestamp   int64    `json:"timestamp"`
}

// LedgerState holds the engine's global scalars.
type LedgerState struct {
	HedgeCounter int64    `json:"hedge_counter"`
	TotalFees    int64    `json:"total_fees"`
	Paused       bool     `json:"paused"`
	Owner        Identity `json:"owner"`
}

// Well-known accounts used as the other side of journal entries.
const (
	EscrowAccount  Identity = "escrow"
	FeePoolAccount Identity = "fee-pool"
)

// TransferKind classifies a journal entry.
type TransferKind string

const (
	TransferStakeDeposit  TransferKind = "stake_deposit"
	TransferStakeRefund   TransferKind = "stake_refund"
	TransferFee           TransferKind = "fee"
	TransferPayout        TransferKind = "payout"
	TransferFeeWithdrawal TransferKind = "fee_withdrawal"
)

// Transfer is an immutable record of a notional value movement.
// Once created, these are never modified or deleted.
type Transfer struct {
	ID      string       `json:"id"`
	HedgeID int64        `json:"hedge_id"` // 0 for fee withdrawals
	From    Identity     `json:"from"`
	To      Identity     `json:"to"`
	Amount  int64        `json:"amount"`
	Kind    TransferKind `json:"kind"`
	Clock   int64        `json:"clock"`
}

// ExecContext carries the per-call inputs supplied by the host
// environment: who is calling and what the logical clock reads.
type ExecContext struct {
	Caller Identity
	Clock  int64
}

// EventType names a lifecycle notification.
type EventType string

const (
	EventHedgeCreated   EventType = "hedge_created"
	EventHedgeMatched   EventType = "hedge_matched"
	EventHedgeSettled   EventType = "hedge_settled"
	EventHedgeCancelled EventType = "hedge_cancelled"
	EventPaused         EventType = "contract_paused"
	EventUnpaused       EventType = "contract_unpaused"
	EventFeesWithdrawn  EventType = "fees_withdrawn"
)

// Event is published after a mutation commits.
type Event struct {
	Type     EventType `json:"type"`
	HedgeID  int64     `json:"hedge_id,omitempty"`
	CropType string    `json:"crop_type,omitempty"`
	Region   string    `json:"region,omitempty"`
	Actor    Identity  `json:"actor,omitempty"`
	Winner   Identity  `json:"winner,omitempty"`
	Amount   int64     `json:"amount,omitempty"`
	Clock    int64     `json:"clock"`
}
