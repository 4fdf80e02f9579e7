package httpapi

import (
	"errors"

	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	"github.com/stanisci/ebics-sandbox/internal/app/withdrawal"
)

// mapDomainError turns an error returned by the ledger/withdrawal services
// into the access API's typed envelope. Arithmetic/booking failures the
// sandbox itself cannot attribute to caller error are always "the bank's
// fault" and fall through to InternalServerError, per the error-handling
// design's propagation policy.
func mapDomainError(err error) *sandboxError {
	if err == nil {
		return nil
	}

	var ebicsErr *ebicserr.Error
	if errors.As(err, &ebicsErr) {
		switch ebicsErr.Code {
		case ebicserr.AccountAuthorisationFailed:
			return errNotFound(ebicsErr.Detail)
		case ebicserr.AmountCheckFailed:
			return errUnprocessable(ebicsErr.Detail)
		case ebicserr.InvalidRequest:
			return errBadRequest(ebicsErr.Detail)
		default:
			return errInternal(ebicsErr.Detail)
		}
	}

	switch {
	case errors.Is(err, withdrawal.ErrIllegalTransition), errors.Is(err, withdrawal.ErrAlreadySelected):
		return errConflict(err.Error())
	case errors.Is(err, withdrawal.ErrInvalidAmount), errors.Is(err, withdrawal.ErrCurrencyMismatch):
		return errBadRequest(err.Error())
	case errors.Is(err, withdrawal.ErrNoSuggestedPayto):
		return errUnprocessable(err.Error())
	default:
		return errInternal(err.Error())
	}
}
