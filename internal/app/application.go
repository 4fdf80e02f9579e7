// Package app wires the sandbox's domain services (EBICS engine, ledger,
// withdrawal FSM, statement tick) and its HTTP surface into one lifecycle
// unit, the way the teacher's own internal/app/application.go wires its
// accounts/functions/triggers/... service graph.
package app

import (
	"context"
	"database/sql"
	"fmt"

	core "github.com/stanisci/ebics-sandbox/internal/app/core/service"
	"github.com/stanisci/ebics-sandbox/internal/app/ebics"
	"github.com/stanisci/ebics-sandbox/internal/app/httpapi"
	"github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/statementtick"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/app/system"
	"github.com/stanisci/ebics-sandbox/internal/app/withdrawal"
)

// Stores encapsulates persistence dependencies. A single backing store (the
// postgres.Store, typically) can implement every one of these.
type Stores struct {
	Hosts       storage.HostStore
	Subscribers storage.SubscriberStore
	Demobanks   storage.DemobankStore
	Accounts    storage.BankAccountStore
	Ledger      storage.LedgerStore
	Withdrawals storage.WithdrawalStore
	EbicsTxs    storage.EbicsTxStore
}

// Config captures the environment-dependent wiring an Application needs
// beyond its stores: the HTTP listen address, admin credentials, and the
// statement-tick cron schedule.
type Config struct {
	ListenAddr        string
	AdminUsername     string
	AdminPassword     string
	StatementTickCron string
}

// Application ties the EBICS engine, ledger, withdrawal FSM, statement-tick
// scheduler, and HTTP service together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Engine      *ebics.Engine
	Ledger      *ledger.Service
	Withdrawals *withdrawal.Service
	Tick        *statementtick.Service
	HTTP        *httpapi.Service

	descriptors []core.Descriptor
}

// New builds a fully wired application. db is the live *sql.DB (may be nil
// in tests that only exercise the in-memory stores), used for audit-log
// persistence.
func New(stores Stores, cfg Config, log *logging.Logger, db *sql.DB) (*Application, error) {
	if log == nil {
		log = logging.NewFromEnv("app")
	}

	manager := system.NewManager()

	engine := ebics.NewEngine(stores.Hosts, stores.Subscribers, stores.EbicsTxs, log)
	ledgerSvc := ledger.New(stores.Accounts, stores.Ledger, stores.Demobanks, log)
	withdrawSvc := withdrawal.New(stores.Accounts, stores.Withdrawals, stores.Demobanks, ledgerSvc, log)
	tickSvc := statementtick.New(stores.Accounts, stores.Ledger, stores.Demobanks, ledgerSvc, log, cfg.StatementTickCron)

	// CCT is the only upload order type the pain.001 ingestion component
	// handles; C52/C53 are the only download reports currently built. HTD,
	// HKD, TSD, and PTK have no backing domain logic yet and are left
	// unregistered — Engine.Serve rejects their order types with
	// [EBICS_UNSUPPORTED_ORDER_TYPE] rather than panicking on a missing
	// handler.
	engine.RegisterUploadHandler("CCT", ledgerSvc.BookCCT)
	engine.RegisterDownloadProvider("C52", ledgerSvc.BuildC52Report)
	engine.RegisterDownloadProvider("C53", ledgerSvc.BuildC53Report)

	httpSvc := httpapi.NewService(cfg.ListenAddr, engine, ledgerSvc, withdrawSvc, tickSvc,
		stores.Hosts, stores.Subscribers, stores.Demobanks, stores.Accounts,
		cfg.AdminUsername, cfg.AdminPassword, log, db)

	for _, svc := range []system.Service{tickSvc, httpSvc} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Engine:      engine,
		Ledger:      ledgerSvc,
		Withdrawals: withdrawSvc,
		Tick:        tickSvc,
		HTTP:        httpSvc,
		descriptors: manager.Descriptors(),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services (statement-tick scheduler, then HTTP
// server, in registration order).
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Descriptors returns advertised service descriptors for CLI introspection.
func (a *Application) Descriptors() []core.Descriptor {
	out := make([]core.Descriptor, len(a.descriptors))
	copy(out, a.descriptors)
	return out
}
