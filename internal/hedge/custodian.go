package hedge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/atmx/yield-hedge/internal/model"
	"github.com/atmx/yield-hedge/internal/store"
)

// pending accumulates the writes of one operation. Nothing reaches the
// store until the engine applies m.
type pending struct {
	st    store.Store
	m     *store.Mutation
	clock int64
}

func newPending(st store.Store, clock int64) *pending {
	return &pending{st: st, m: &store.Mutation{}, clock: clock}
}

// transfer journals a value movement. Zero amounts are not recorded.
func (p *pending) transfer(hedgeID int64, from, to model.Identity, amount int64, kind model.TransferKind) {
	if amount == 0 {
		return
	}
	p.m.Transfers = append(p.m.Transfers, model.Transfer{
		ID:      uuid.New().String(),
		HedgeID: hedgeID,
		From:    from,
		To:      to,
		Amount:  amount,
		Kind:    kind,
		Clock:   p.clock,
	})
}

// recordStake escrows a participant's stake.
func (p *pending) recordStake(hedgeID int64, participant model.Identity, amount int64) {
	p.m.PutStakes = append(p.m.PutStakes, model.Stake{
		HedgeID:     hedgeID,
		Participant: participant,
		Amount:      amount,
	})
	p.transfer(hedgeID, participant, model.EscrowAccount, amount, model.TransferStakeDeposit)
}

// refundStake removes a participant's stake and returns it to them. A
// missing stake record fails with ErrInsufficientStake.
func (p *pending) refundStake(ctx context.Context, hedgeID int64, participant model.Identity) (int64, error) {
	st, err := p.st.GetStake(ctx, hedgeID, participant)
	if err != nil {
		return 0, fmt.Errorf("load stake %d/%s: %w", hedgeID, participant, err)
	}
	if st == nil {
		return 0, ErrInsufficientStake
	}
	p.m.DeleteStakes = append(p.m.DeleteStakes, st.Key())
	p.transfer(hedgeID, model.EscrowAccount, participant, st.Amount, model.TransferStakeRefund)
	return st.Amount, nil
}
