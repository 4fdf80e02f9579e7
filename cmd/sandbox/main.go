// Command sandbox runs the EBICS H004 banking sandbox: the EBICS posting
// endpoint, the access API, and the admin provisioning surface, plus a
// handful of maintenance subcommands. One binary, flag-based subcommands,
// mirroring the teacher's own single-binary cmd/appserver.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	app "github.com/stanisci/ebics-sandbox/internal/app"
	"github.com/stanisci/ebics-sandbox/internal/app/config"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/logging"
	"github.com/stanisci/ebics-sandbox/internal/app/storage/postgres"
	"github.com/stanisci/ebics-sandbox/internal/platform/database"
	"github.com/stanisci/ebics-sandbox/pkg/version"
	"github.com/stanisci/ebics-sandbox/system/platform/migrations"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "config":
		err = runConfig(args)
	case "make-transaction":
		err = runMakeTransaction(args)
	case "camt053tick":
		err = runCamt053Tick(args)
	case "default-exchange":
		err = runDefaultExchange(args)
	case "reset-tables":
		err = runResetTables(args)
	case "version":
		fmt.Println(version.FullVersion())
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Println("fatal:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sandbox <serve|config|make-transaction|camt053tick|default-exchange|reset-tables|version> [flags]")
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnLifetime)
	return db, nil
}

func storesFromDB(db *sql.DB) app.Stores {
	store := postgres.New(db)
	return app.Stores{
		Hosts:       store,
		Subscribers: store,
		Demobanks:   store,
		Accounts:    store,
		Ledger:      store,
		Withdrawals: store,
		EbicsTxs:    store,
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "HTTP listen address (overrides config)")
	migrate := fs.Bool("migrate", true, "apply embedded migrations on startup")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	listenAddr := strings.TrimSpace(*addr)
	if listenAddr == "" {
		listenAddr = cfg.ListenAddr
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if *migrate && cfg.MigrateOnStart {
		if err := migrations.Apply(context.Background(), db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	seedStore := postgres.New(db)
	if _, err := seedStore.GetDemobankByName(context.Background(), cfg.DefaultDemobankName); err != nil {
		if _, err := seedStore.CreateDemobank(context.Background(), demobank.Demobank{
			Name:             cfg.DefaultDemobankName,
			Currency:         cfg.DefaultDemobankCurrency,
			DefaultDebtLimit: cfg.DefaultDemobankDebtLimit,
		}); err != nil {
			return fmt.Errorf("seed default demobank: %w", err)
		}
	}

	log := logging.New("sandbox", cfg.LogLevel, cfg.LogFormat)

	application, err := app.New(storesFromDB(db), app.Config{
		ListenAddr:        listenAddr,
		AdminUsername:     cfg.AdminUsername,
		AdminPassword:     cfg.AdminPassword,
		StatementTickCron: cfg.StatementTickCron,
	}, log, db)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	log.Info("sandbox listening on " + listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return application.Stop(shutdownCtx)
}

// runConfig prints the resolved, non-secret configuration and exits. Useful
// for verifying environment wiring before "serve".
func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Printf("environment:           %s\n", cfg.Env)
	fmt.Printf("listen address:        %s\n", cfg.ListenAddr)
	fmt.Printf("database dsn:          %s\n", redactDSN(cfg.DatabaseDSN))
	fmt.Printf("admin username:        %s\n", cfg.AdminUsername)
	fmt.Printf("admin password set:    %t\n", cfg.AdminPassword != "")
	fmt.Printf("statement tick cron:   %s\n", cfg.StatementTickCron)
	fmt.Printf("default demobank:      %s (%s, debt limit %s)\n", cfg.DefaultDemobankName, cfg.DefaultDemobankCurrency, cfg.DefaultDemobankDebtLimit)
	return nil
}

func redactDSN(dsn string) string {
	if idx := strings.Index(dsn, "@"); idx != -1 {
		return "***@" + dsn[idx+1:]
	}
	return dsn
}

// runMakeTransaction books a transaction directly between two IBANs in a
// demobank, bypassing the EBICS pain.001 upload path. Used to seed fixtures
// for integration tests and demos.
func runMakeTransaction(args []string) error {
	fs := flag.NewFlagSet("make-transaction", flag.ExitOnError)
	demobankName := fs.String("demobank", "default", "demobank name")
	debitIBAN := fs.String("debit-account", "", "debtor IBAN")
	creditIBAN := fs.String("credit-account", "", "creditor IBAN")
	amount := fs.String("amount", "", "decimal amount")
	subject := fs.String("subject", "manual transaction", "payment subject / pmtInfId")
	fs.Parse(args)

	if strings.TrimSpace(*debitIBAN) == "" || strings.TrimSpace(*creditIBAN) == "" || strings.TrimSpace(*amount) == "" {
		return fmt.Errorf("make-transaction requires -debit-account, -credit-account, and -amount")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := logging.New("sandbox", cfg.LogLevel, cfg.LogFormat)
	stores := storesFromDB(db)
	application, err := app.New(stores, app.Config{ListenAddr: cfg.ListenAddr, StatementTickCron: cfg.StatementTickCron}, log, db)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	ctx := context.Background()
	bank, err := stores.Demobanks.GetDemobankByName(ctx, *demobankName)
	if err != nil {
		return fmt.Errorf("lookup demobank %s: %w", *demobankName, err)
	}
	debtor, err := stores.Accounts.GetAccountByIBAN(ctx, bank.ID, *debitIBAN)
	if err != nil {
		return fmt.Errorf("lookup debtor account %s: %w", *debitIBAN, err)
	}
	creditor, err := stores.Accounts.GetAccountByIBAN(ctx, bank.ID, *creditIBAN)
	if err != nil {
		return fmt.Errorf("lookup creditor account %s: %w", *creditIBAN, err)
	}

	debitTxID, creditTxID, err := application.Ledger.ExecuteTransfer(ctx, debtor.ID, creditor.ID, *amount, bank.Currency, *subject)
	if err != nil {
		return fmt.Errorf("execute transfer: %w", err)
	}
	fmt.Printf("booked debit transaction %s, credit transaction %s\n", debitTxID, creditTxID)
	return nil
}

// runCamt053Tick forces an out-of-schedule statement close across every
// account, the CLI equivalent of POST /admin/statement-tick.
func runCamt053Tick(args []string) error {
	fs := flag.NewFlagSet("camt053tick", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := logging.New("sandbox", cfg.LogLevel, cfg.LogFormat)
	application, err := app.New(storesFromDB(db), app.Config{ListenAddr: cfg.ListenAddr, StatementTickCron: cfg.StatementTickCron}, log, db)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}
	if err := application.Tick.RunTick(context.Background()); err != nil {
		return fmt.Errorf("run statement tick: %w", err)
	}
	fmt.Println("statement tick complete")
	return nil
}

// runDefaultExchange sets or replaces a demobank's suggested Taler exchange
// account, used by wallets that auto-select an exchange on withdrawal.
func runDefaultExchange(args []string) error {
	fs := flag.NewFlagSet("default-exchange", flag.ExitOnError)
	demobankName := fs.String("demobank", "default", "demobank name")
	exchangePaytoURL := fs.String("exchange-payto-url", "", "payto:// URI of the exchange account")
	fs.Parse(args)

	if strings.TrimSpace(*exchangePaytoURL) == "" {
		return fmt.Errorf("default-exchange requires -exchange-payto-url")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store := postgres.New(db)
	ctx := context.Background()
	bank, err := store.GetDemobankByName(ctx, *demobankName)
	if err != nil {
		return fmt.Errorf("lookup demobank %s: %w", *demobankName, err)
	}
	bank.SuggestedExchangeAccount = *exchangePaytoURL
	if _, err := store.UpdateDemobank(ctx, bank); err != nil {
		return fmt.Errorf("update demobank %s: %w", *demobankName, err)
	}
	fmt.Printf("demobank %s now suggests exchange %s\n", *demobankName, *exchangePaytoURL)
	return nil
}

// runResetTables drops every sandbox-owned row and re-applies migrations, the
// equivalent of starting over against the same database. Used by the
// integration test harness between scenario runs.
func runResetTables(args []string) error {
	fs := flag.NewFlagSet("reset-tables", flag.ExitOnError)
	force := fs.Bool("force", false, "required: confirms the caller understands this wipes all data")
	fs.Parse(args)

	if !*force {
		return fmt.Errorf("reset-tables requires -force to avoid accidental data loss")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tables := []string{
		"http_audit_log", "taler_withdrawals", "bank_account_transactions",
		"bank_account_statements", "ebics_download_transactions", "ebics_upload_transactions",
		"bank_accounts", "demobank_customers", "demobank_configs",
		"ebics_used_order_ids", "ebics_order_signatures", "ebics_subscribers", "ebics_hosts",
	}
	for _, table := range tables {
		if _, err := db.ExecContext(context.Background(), "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	if err := migrations.Apply(context.Background(), db); err != nil {
		return fmt.Errorf("re-apply migrations: %w", err)
	}
	fmt.Println("tables reset")
	return nil
}
