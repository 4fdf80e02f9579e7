// Package statementtick runs the periodic job that closes every bank
// account's fresh transactions into a camt.053 statement.
package statementtick

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	ledgerdom "github.com/stanisci/ebics-sandbox/internal/app/domain/ledger"
	ledgersvc "github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/xmlcodec"
)

// defaultSchedule runs once a day at 01:00, the "typically once per business
// day" cadence spec.md describes for the tick.
const defaultSchedule = "0 1 * * *"

// Service wraps the statement-tick job in the lifecycle the rest of the
// sandbox's background services use (cron-scheduled instead of a plain
// ticker, since the job is calendar-aware rather than fixed-interval).
type Service struct {
	accounts  storage.BankAccountStore
	ledger    storage.LedgerStore
	demobanks storage.DemobankStore
	booking   *ledgersvc.Service
	log       *logging.Logger
	schedule  string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New constructs the statement-tick service. schedule is a standard 5-field
// cron expression; an empty string falls back to defaultSchedule.
func New(accounts storage.BankAccountStore, ledgerStore storage.LedgerStore, demobanks storage.DemobankStore, booking *ledgersvc.Service, log *logging.Logger, schedule string) *Service {
	if log == nil {
		log = logging.NewFromEnv("statementtick")
	}
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &Service{accounts: accounts, ledger: ledgerStore, demobanks: demobanks, booking: booking, log: log, schedule: schedule}
}

func (s *Service) Name() string { return "statement-tick" }

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.RunTick(runCtx); err != nil {
			s.log.WithError(err).Warn("statement tick failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule statement tick %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.running = true
	s.log.Info("statement tick scheduler started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.running = false
	s.cron = nil
	return nil
}

// RunTick executes one statement-close pass over every demobank's accounts.
// It is exported directly so the "camt053tick" CLI subcommand can invoke it
// synchronously without going through the cron scheduler.
func (s *Service) RunTick(ctx context.Context) error {
	demobanks, err := s.demobanks.ListDemobanks(ctx)
	if err != nil {
		return fmt.Errorf("list demobanks: %w", err)
	}

	closed := 0
	var tickErr error
	for _, d := range demobanks {
		accounts, err := s.accounts.ListAllAccounts(ctx, d.ID)
		if err != nil {
			tickErr = err
			continue
		}
		for _, acct := range accounts {
			if err := s.closeAccount(ctx, acct); err != nil {
				s.log.WithError(err).WithField("account_id", acct.ID).Warn("statement tick failed for account")
				tickErr = err
				continue
			}
			closed++
		}
	}
	s.log.LogStatementTick(ctx, closed, tickErr)
	return tickErr
}

// closeAccount closes one account's fresh transactions into a new statement.
// Each account is closed in its own call into storage.LedgerStore.CloseStatement,
// which runs under a serializable transaction; by the time every account in
// every demobank has been processed this way, the fresh-transaction set is
// empty across the whole sandbox, satisfying the "truncate the entire
// fresh-transaction set" step without a second global pass.
func (s *Service) closeAccount(ctx context.Context, acct bankaccount.Account) error {
	latest, ok, err := s.ledger.LatestStatement(ctx, acct.ID)
	if err != nil {
		return err
	}
	prcd := "0.00"
	seq := 1
	from := acct.CreatedAt
	if ok {
		prcd = latest.ClosingBalance
		seq = latest.StatementNumber + 1
		from = latest.CreationTimestamp
	}

	clbd, err := s.booking.Balance(ctx, acct)
	if err != nil {
		return err
	}

	fresh, err := s.ledger.ListFreshTransactions(ctx, acct.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stmtID, err := newStatementID()
	if err != nil {
		return err
	}
	doc := xmlcodec.NewCamt053(stmtID, acct.IBAN, acct.Currency, seq, prcd, clbd, from, now, ledgersvc.ToCamtEntries(fresh))
	body, err := xmlcodec.MarshalCamt053(doc)
	if err != nil {
		return err
	}

	stmt := ledgerdom.Statement{
		AccountID:         acct.ID,
		StatementNumber:   seq,
		OpeningBalance:    prcd,
		ClosingBalance:    clbd,
		Currency:          acct.Currency,
		CreationTimestamp: now,
		FromDate:          from,
		ToDate:            now,
		Document:          body,
	}
	if _, err := s.ledger.CloseStatement(ctx, acct.ID, stmt); err != nil {
		return err
	}

	acct.LastBalance = clbd
	acct.LastBalanceDate = now
	_, err = s.accounts.UpdateAccount(ctx, acct)
	return err
}

func newStatementID() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sandbox-" + strconv.FormatInt(time.Now().UTC().Unix(), 10) + "-" + hex.EncodeToString(buf), nil
}
