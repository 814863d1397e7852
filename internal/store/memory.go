package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/yield-hedge/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	hedges      map[int64]*model.Hedge
	stakes      map[model.StakeKey]model.Stake
	settlements map[int64]model.Settlement
	transfers   []model.Transfer
	state       model.LedgerState
}

// NewMemoryStore creates a new in-memory store owned by owner.
func NewMemoryStore(owner model.Identity) *MemoryStore {
	return &MemoryStore{
		hedges:      make(map[int64]*model.Hedge),
		stakes:      make(map[model.StakeKey]model.Stake),
		settlements: make(map[int64]model.Settlement),
		state:       model.LedgerState{Owner: owner},
	}
}

func (s *MemoryStore) GetHedge(_ context.Context, id int64) (*model.Hedge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hedges[id]
	if !ok {
		return nil, nil
	}
	// Return a copy to avoid external mutation.
	copy := *h
	return &copy, nil
}

func (s *MemoryStore) ListHedges(_ context.Context) ([]model.Hedge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hedges := make([]model.Hedge, 0, len(s.hedges))
	for _, h := range s.hedges {
		hedges = append(hedges, *h)
	}
	sort.Slice(hedges, func(i, j int) bool { return hedges[i].ID < hedges[j].ID })
	return hedges, nil
}

func (s *MemoryStore) GetStake(_ context.Context, hedgeID int64, participant model.Identity) (*model.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stakes[model.StakeKey{HedgeID: hedgeID, Participant: participant}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStore) GetSettlement(_ context.Context, hedgeID int64) (*model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settlements[hedgeID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStore) GetLedgerState(_ context.Context) (model.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

func (s *MemoryStore) GetTransfersByHedge(_ context.Context, hedgeID int64) ([]model.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transfer
	for _, t := range s.transfers {
		if t.HedgeID == hedgeID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetTransfersByParticipant(_ context.Context, participant model.Identity) ([]model.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transfer
	for _, t := range s.transfers {
		if t.From == participant || t.To == participant {
			result = append(result, t)
		}
	}
	return result, nil
}

// Apply validates the whole mutation under the write lock before touching
// any map, so a rejected mutation leaves no trace.
func (s *MemoryStore) Apply(_ context.Context, m *Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := make(map[model.StakeKey]bool, len(m.DeleteStakes))
	for _, k := range m.DeleteStakes {
		if _, ok := s.stakes[k]; !ok || deleted[k] {
			return fmt.Errorf("%w: hedge %d participant %s", ErrStakeMissing, k.HedgeID, k.Participant)
		}
		deleted[k] = true
	}
	inserted := make(map[int64]bool, len(m.Settlements))
	for _, st := range m.Settlements {
		if _, ok := s.settlements[st.HedgeID]; ok || inserted[st.HedgeID] {
			return fmt.Errorf("%w: hedge %d", ErrSettlementExists, st.HedgeID)
		}
		inserted[st.HedgeID] = true
	}

	for _, h := range m.Hedges {
		copy := h
		s.hedges[h.ID] = &copy
	}
	for _, st := range m.PutStakes {
		s.stakes[st.Key()] = st
	}
	for _, k := range m.DeleteStakes {
		delete(s.stakes, k)
	}
	for _, st := range m.Settlements {
		s.settlements[st.HedgeID] = st
	}
	s.transfers = append(s.transfers, m.Transfers...)
	if m.State != nil {
		s.state = *m.State
	}
	return nil
}
