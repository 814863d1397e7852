package hedge

import (
	"errors"
	"fmt"
)

// Code is a numeric result code returned by engine operations. Codes are
// comparable errors, so callers can use errors.Is(err, hedge.ErrNotFound)
// on wrapped values.
type Code uint16

const (
	ErrUnauthorized           Code = 100
	ErrInvalidParams          Code = 101
	ErrInsufficientStake      Code = 102 // also: stake record missing, withdrawal above pool
	ErrNotFound               Code = 103
	ErrAlreadySettled         Code = 104
	ErrOracleFail             Code = 105
	ErrSeasonNotEnded         Code = 106
	ErrAlreadyMatched         Code = 107
	ErrInvalidState           Code = 108
	ErrTransferFail           Code = 109 // reserved
	ErrFeeCalculation         Code = 110 // reserved
	ErrInvalidCounterparty    Code = 111
	ErrHedgeExpired           Code = 112
	ErrCancellationNotAllowed Code = 113
)

var codeNames = map[Code]string{
	ErrUnauthorized:           "UNAUTHORIZED",
	ErrInvalidParams:          "INVALID_PARAMS",
	ErrInsufficientStake:      "INSUFFICIENT_STAKE",
	ErrNotFound:               "NOT_FOUND",
	ErrAlreadySettled:         "ALREADY_SETTLED",
	ErrOracleFail:             "ORACLE_FAIL",
	ErrSeasonNotEnded:         "SEASON_NOT_ENDED",
	ErrAlreadyMatched:         "ALREADY_MATCHED",
	ErrInvalidState:           "INVALID_STATE",
	ErrTransferFail:           "TRANSFER_FAIL",
	ErrFeeCalculation:         "FEE_CALCULATION",
	ErrInvalidCounterparty:    "INVALID_COUNTERPARTY",
	ErrHedgeExpired:           "HEDGE_EXPIRED",
	ErrCancellationNotAllowed: "CANCELLATION_NOT_ALLOWED",
}

var codeMessages = map[Code]string{
	ErrUnauthorized:           "caller is not authorized",
	ErrInvalidParams:          "invalid parameters",
	ErrInsufficientStake:      "insufficient stake",
	ErrNotFound:               "hedge not found",
	ErrAlreadySettled:         "hedge already settled",
	ErrOracleFail:             "yield oracle unavailable",
	ErrSeasonNotEnded:         "season has not ended",
	ErrAlreadyMatched:         "hedge already matched",
	ErrInvalidState:           "invalid state",
	ErrTransferFail:           "value transfer failed",
	ErrFeeCalculation:         "fee calculation failed",
	ErrInvalidCounterparty:    "invalid counterparty",
	ErrHedgeExpired:           "hedge season already started",
	ErrCancellationNotAllowed: "matched hedges cannot be cancelled",
}

// Name returns the symbolic name, e.g. "INVALID_PARAMS".
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE_%d", uint16(c))
}

func (c Code) Error() string {
	if m, ok := codeMessages[c]; ok {
		return "hedge: " + m
	}
	return fmt.Sprintf("hedge: error %d", uint16(c))
}

// CodeOf extracts the result code from an error chain.
func CodeOf(err error) (Code, bool) {
	var c Code
	if errors.As(err, &c) {
		return c, true
	}
	return 0, false
}
