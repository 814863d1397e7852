package hedge

import "github.com/atmx/yield-hedge/internal/model"

// guard is one step of an ordered validation pipeline.
type guard func() error

// firstFailure runs guards in order and returns the first error. Callers
// observe the code of the earliest failing guard, so order matters.
func firstFailure(guards ...guard) error {
	for _, g := range guards {
		if err := g(); err != nil {
			return err
		}
	}
	return nil
}

// require fails with code unless ok holds.
func require(ok bool, code Code) guard {
	return func() error {
		if !ok {
			return code
		}
		return nil
	}
}

// requireOwner is the access-control check for admin operations.
func requireOwner(state model.LedgerState, caller model.Identity) guard {
	return require(caller == state.Owner, ErrUnauthorized)
}
