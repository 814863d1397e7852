// Package store defines the persistence interface for the hedge engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/yield-hedge/internal/model"
)

var (
	// ErrStakeMissing is returned by Apply when a mutation deletes a stake
	// that does not exist.
	ErrStakeMissing = errors.New("store: stake record missing")

	// ErrSettlementExists is returned by Apply when a mutation inserts a
	// second settlement for the same hedge.
	ErrSettlementExists = errors.New("store: settlement already recorded")

	// ErrNotBootstrapped is returned when the ledger state row was never seeded.
	ErrNotBootstrapped = errors.New("store: ledger state not initialized")
)

// Mutation is the complete set of writes produced by one engine operation.
// Apply commits all of it or none of it.
type Mutation struct {
	// Hedges are inserted or overwritten by ID.
	Hedges []model.Hedge

	// PutStakes are inserted or overwritten by (hedge, participant).
	PutStakes []model.Stake

	// DeleteStakes must each name an existing stake.
	DeleteStakes []model.StakeKey

	// Settlements are write-once.
	Settlements []model.Settlement

	// Transfers are appended to the immutable journal.
	Transfers []model.Transfer

	// State, when non-nil, replaces the ledger scalars.
	State *model.LedgerState
}

// Empty reports whether the mutation carries no writes.
func (m *Mutation) Empty() bool {
	return len(m.Hedges) == 0 && len(m.PutStakes) == 0 && len(m.DeleteStakes) == 0 &&
		len(m.Settlements) == 0 && len(m.Transfers) == 0 && m.State == nil
}

// Store is the persistence interface. Absent records are reported as
// (nil, nil); errors are reserved for backend failures.
type Store interface {
	// --- Hedges ---

	// GetHedge retrieves a hedge by ID.
	GetHedge(ctx context.Context, id int64) (*model.Hedge, error)

	// ListHedges returns all hedges ordered by ID.
	ListHedges(ctx context.Context) ([]model.Hedge, error)

	// --- Escrow ---

	// GetStake retrieves one participant's stake in a hedge.
	GetStake(ctx context.Context, hedgeID int64, participant model.Identity) (*model.Stake, error)

	// --- Settlements ---

	// GetSettlement retrieves the settlement record of a hedge.
	GetSettlement(ctx context.Context, hedgeID int64) (*model.Settlement, error)

	// --- Ledger scalars ---

	// GetLedgerState returns the counter, fee pool, pause flag and owner.
	GetLedgerState(ctx context.Context) (model.LedgerState, error)

	// --- Transfer journal ---

	// GetTransfersByHedge returns journal entries for a hedge in append order.
	GetTransfersByHedge(ctx context.Context, hedgeID int64) ([]model.Transfer, error)

	// GetTransfersByParticipant returns entries where the participant is
	// either side, in append order.
	GetTransfersByParticipant(ctx context.Context, participant model.Identity) ([]model.Transfer, error)

	// --- Writes ---

	// Apply commits a mutation atomically.
	Apply(ctx context.Context, m *Mutation) error
}
