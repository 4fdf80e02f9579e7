package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stanisci/ebics-sandbox/internal/app/ebics"
	"github.com/stanisci/ebics-sandbox/internal/app/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/metrics"
	"github.com/stanisci/ebics-sandbox/internal/app/statementtick"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
	"github.com/stanisci/ebics-sandbox/internal/app/system"
	"github.com/stanisci/ebics-sandbox/internal/app/withdrawal"
)

var _ system.Service = (*Service)(nil)

// Service exposes the sandbox's HTTP API (EBICS posting, access API, admin
// provisioning) over a plain net/http.Server.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logging.Logger
}

// NewService builds the HTTP service. Audit entries are persisted to the
// file named by SANDBOX_AUDIT_LOG_PATH when it is set, else to Postgres when
// db is non-nil; otherwise they are only kept in memory.
func NewService(addr string, engine *ebics.Engine, ledgerSvc *ledger.Service, withdrawSvc *withdrawal.Service, tickSvc *statementtick.Service, hosts storage.HostStore, subs storage.SubscriberStore, demobanks storage.DemobankStore, accounts storage.BankAccountStore, adminUsername, adminPassword string, log *logging.Logger, db *sql.DB) *Service {
	if log == nil {
		log = logging.NewFromEnv("http")
	}

	var sink auditSink
	if path := strings.TrimSpace(os.Getenv("SANDBOX_AUDIT_LOG_PATH")); path != "" {
		if fileSink, err := newFileAuditSink(path); err == nil {
			sink = fileSink
			log.Info("audit log persisting to " + path)
		} else {
			log.Warn("audit log file not configured: " + err.Error())
		}
	} else if db != nil {
		sink = newPostgresAuditSink(db)
	}
	audit := newAuditLog(300, sink)

	handler := NewHandler(Deps{
		Engine:        engine,
		Ledger:        ledgerSvc,
		Withdrawals:   withdrawSvc,
		Tick:          tickSvc,
		Hosts:         hosts,
		Subs:          subs,
		Demobanks:     demobanks,
		Accounts:      accounts,
		AdminUsername: adminUsername,
		AdminPassword: adminPassword,
		Log:           log,
	}, audit)

	// Order matters: audit should see the final status code, CORS should
	// short-circuit preflight before anything else, metrics wraps last so
	// every request (including ones CORS intercepts) is counted.
	handler = wrapWithAudit(handler, audit)
	handler = wrapWithCORS(handler)
	handler = metrics.InstrumentHandler(handler)

	return &Service{addr: addr, handler: handler, log: log}
}

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error: " + err.Error())
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
