// Package oracle defines the yield oracle collaborator consulted at
// settlement. The engine treats every failure the same way; callers retry
// by settling again later.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoData is returned when the oracle has no measurement for the query.
var ErrNoData = errors.New("oracle: no yield data")

// Client returns the actual yield, fixed-point scaled, for a crop and
// region at the end of a season.
type Client interface {
	GetYield(ctx context.Context, cropType, region string, seasonEnd int64) (int64, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, cropType, region string, seasonEnd int64) (int64, error)

func (f ClientFunc) GetYield(ctx context.Context, cropType, region string, seasonEnd int64) (int64, error) {
	return f(ctx, cropType, region, seasonEnd)
}

type key struct {
	crop, region string
	seasonEnd    int64
}

// Static serves yields from an in-memory table. Used for tests and local
// development.
type Static struct {
	mu     sync.RWMutex
	yields map[key]int64
}

// NewStatic creates an empty static oracle.
func NewStatic() *Static {
	return &Static{yields: make(map[key]int64)}
}

// Set records the yield for a crop, region and season end.
func (s *Static) Set(cropType, region string, seasonEnd, yield int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yields[key{cropType, region, seasonEnd}] = yield
}

// Delete removes a recorded yield.
func (s *Static) Delete(cropType, region string, seasonEnd int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.yields, key{cropType, region, seasonEnd})
}

func (s *Static) GetYield(_ context.Context, cropType, region string, seasonEnd int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, ok := s.yields[key{cropType, region, seasonEnd}]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s@%d", ErrNoData, cropType, region, seasonEnd)
	}
	return y, nil
}
