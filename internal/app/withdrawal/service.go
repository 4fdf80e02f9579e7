// Package withdrawal drives the Taler wire-gateway withdrawal operation
// lifecycle: created -> selected -> confirmed, or created|selected -> aborted.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/withdrawalop"
	"github.com/stanisci/ebics-sandbox/internal/app/ebicserr"
	ledgersvc "github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrCurrencyMismatch  = errors.New("currency does not match account currency")
	ErrAlreadySelected   = errors.New("withdrawal already selected with different parameters")
	ErrIllegalTransition = errors.New("illegal withdrawal state transition")
	ErrNoSuggestedPayto  = errors.New("no selected or suggested exchange account available")
)

// Service drives withdrawal-operation state transitions. It follows the same
// load -> validate -> mutate -> persist -> log shape as the booking service's
// BookCCT, generalized to the four-state created/selected/confirmed/aborted
// FSM instead of a single one-shot booking.
type Service struct {
	accounts  storage.BankAccountStore
	withdraws storage.WithdrawalStore
	demobanks storage.DemobankStore
	booking   *ledgersvc.Service
	log       *logging.Logger
}

// New constructs a withdrawal service and wires booking.PendingAmount so the
// ledger's debt-limit checks account for withdrawals this service is
// currently holding open.
func New(accounts storage.BankAccountStore, withdraws storage.WithdrawalStore, demobanks storage.DemobankStore, booking *ledgersvc.Service, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewFromEnv("withdrawal")
	}
	s := &Service{accounts: accounts, withdraws: withdraws, demobanks: demobanks, booking: booking, log: log}
	booking.PendingAmount = s.pendingAmount
	return s
}

// pendingAmount sums the amount held back by every not-yet-resolved
// withdrawal (created or selected, not yet confirmed or aborted) on an
// account. Registered onto ledger.Service.PendingAmount at construction time.
func (s *Service) pendingAmount(ctx context.Context, accountID string) (string, error) {
	ops, err := s.withdraws.ListWithdrawalsByAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	total := int64(0)
	for _, op := range ops {
		if op.State != withdrawalop.Created && op.State != withdrawalop.Selected {
			continue
		}
		cents, err := ledgersvc.ParseAmountCents(op.Amount)
		if err != nil {
			continue
		}
		total += cents
	}
	return ledgersvc.FormatAmountCents(total), nil
}

// Create allocates a new withdrawal in the created state on accountID,
// enforcing currency match against the account and the debt-limit predicate
// (so a withdrawal can never be created for more than the account could
// eventually pay out).
func (s *Service) Create(ctx context.Context, accountID, amount, currency string) (withdrawalop.Op, error) {
	if strings.TrimSpace(amount) == "" {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.InvalidRequest, ErrInvalidAmount.Error())
	}
	if cents, err := ledgersvc.ParseAmountCents(amount); err == nil && cents <= 0 {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.InvalidRequest, ErrInvalidAmount.Error())
	}
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.AccountAuthorisationFailed, accountID)
	}
	if currency != acct.Currency {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, ErrCurrencyMismatch.Error())
	}
	if err := s.booking.CheckMaybeDebit(ctx, acct, amount); err != nil {
		return withdrawalop.Op{}, err
	}

	now := time.Now().UTC()
	op, err := s.withdraws.CreateWithdrawal(ctx, withdrawalop.Op{
		Wopid:     uuid.NewString(),
		AccountID: acct.ID,
		Amount:    amount,
		Currency:  currency,
		State:     withdrawalop.Created,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	s.log.LogWithdrawal(ctx, op.Wopid, string(op.State))
	return op, nil
}

// Get returns a withdrawal by wopid. Reads never mutate state.
func (s *Service) Get(ctx context.Context, wopid string) (withdrawalop.Op, error) {
	return s.withdraws.GetWithdrawal(ctx, wopid)
}

// Select records the wallet's chosen reserve public key and exchange IBAN,
// moving created -> selected. A repeat call with the same reserve_pub and
// exchange is a no-op; a repeat call with different values is a conflict.
func (s *Service) Select(ctx context.Context, wopid, reservePub, selectedExchangeIBAN string) (withdrawalop.Op, error) {
	op, err := s.withdraws.GetWithdrawal(ctx, wopid)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}

	if op.State == withdrawalop.Selected {
		if op.ReservePub == reservePub && op.SelectedExchangeIBAN == selectedExchangeIBAN {
			return op, nil
		}
		return withdrawalop.Op{}, ErrAlreadySelected
	}
	if !op.State.CanTransitionTo(withdrawalop.Selected) {
		return withdrawalop.Op{}, fmt.Errorf("%w: %s -> selected", ErrIllegalTransition, op.State)
	}

	op.State = withdrawalop.Selected
	op.ReservePub = reservePub
	op.SelectedExchangeIBAN = selectedExchangeIBAN
	op.UpdatedAt = time.Now().UTC()
	op, err = s.withdraws.UpdateWithdrawal(ctx, op)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	s.log.LogWithdrawal(ctx, op.Wopid, string(op.State))
	return op, nil
}

// Confirm executes the payout: a ledger wire transfer with subject set to
// the reserve public key, from the withdrawing customer's account to the
// selected (or demobank-suggested) exchange account. Requires selected and
// not aborted; sets confirmed on success.
func (s *Service) Confirm(ctx context.Context, wopid string) (withdrawalop.Op, error) {
	op, err := s.withdraws.GetWithdrawal(ctx, wopid)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	if !op.State.CanTransitionTo(withdrawalop.Confirmed) {
		return withdrawalop.Op{}, fmt.Errorf("%w: %s -> confirmed", ErrIllegalTransition, op.State)
	}

	acct, err := s.accounts.GetAccount(ctx, op.AccountID)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.AccountAuthorisationFailed, op.AccountID)
	}

	exchangeIBAN := op.SelectedExchangeIBAN
	if exchangeIBAN == "" {
		d, err := s.demobanks.GetDemobank(ctx, acct.DemobankID)
		if err != nil || d.SuggestedExchangeAccount == "" {
			return withdrawalop.Op{}, ErrNoSuggestedPayto
		}
		exchangeIBAN = d.SuggestedExchangeAccount
	}
	exchange, err := s.accounts.GetAccountByIBAN(ctx, acct.DemobankID, exchangeIBAN)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, fmt.Sprintf("exchange account %s not found", exchangeIBAN))
	}

	_, creditTxID, err := s.booking.ExecuteTransfer(ctx, acct.ID, exchange.ID, op.Amount, op.Currency, op.ReservePub)
	if err != nil {
		return withdrawalop.Op{}, err
	}

	op.State = withdrawalop.Confirmed
	op.SelectedExchangeIBAN = exchangeIBAN
	op.ConfirmedTransactionID = creditTxID
	op.UpdatedAt = time.Now().UTC()
	op, err = s.withdraws.UpdateWithdrawal(ctx, op)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	s.log.LogWithdrawal(ctx, op.Wopid, string(op.State))
	return op, nil
}

// Abort cancels a withdrawal that has not yet been confirmed.
func (s *Service) Abort(ctx context.Context, wopid string) (withdrawalop.Op, error) {
	op, err := s.withdraws.GetWithdrawal(ctx, wopid)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	if op.State == withdrawalop.Confirmed {
		return withdrawalop.Op{}, fmt.Errorf("%w: cannot abort a confirmed withdrawal", ErrIllegalTransition)
	}
	if op.State == withdrawalop.Aborted {
		return op, nil
	}

	op.State = withdrawalop.Aborted
	op.UpdatedAt = time.Now().UTC()
	op, err = s.withdraws.UpdateWithdrawal(ctx, op)
	if err != nil {
		return withdrawalop.Op{}, ebicserr.New(ebicserr.ProcessingError, err.Error())
	}
	s.log.LogWithdrawal(ctx, op.Wopid, string(op.State))
	return op, nil
}
