package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/config"
	"github.com/erp/receivables/internal/infrastructure/logger"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// Replaced in tests
var (
	loadConfig   = config.Load
	openDatabase = func(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
		gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
		return persistence.NewDatabase(&cfg.Database, gormLog)
	}
)

type globalOptions struct {
	logLevel string
	tenant   string
	user     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the receivables ledger",
		Long: `ledgerctl runs maintenance and reporting tasks against the receivables
ledger database: reconciliation of stored balances with the payment ledger,
overdue aging, portfolio summaries, schema status and service tokens.

Configuration is read from config.toml and LEDGER_ environment variables.
A .env file in the working directory is loaded first when present.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.tenant, "tenant", "", "Tenant ID the command operates on")
	root.PersistentFlags().StringVar(&opts.user, "user", "", "User ID recorded as the actor")

	root.AddCommand(
		newReconcileCmd(opts),
		newAgingCmd(opts),
		newSummaryCmd(opts),
		newTokenCmd(opts),
		newMigrateStatusCmd(opts),
	)
	return root
}

// actor resolves --tenant and --user. The user is optional and defaults to
// the nil UUID.
func (o *globalOptions) actor() (shared.Actor, error) {
	if o.tenant == "" {
		return shared.Actor{}, fmt.Errorf("--tenant is required")
	}
	tenantID, err := uuid.Parse(o.tenant)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("invalid --tenant: %w", err)
	}
	userID := uuid.Nil
	if o.user != "" {
		if userID, err = uuid.Parse(o.user); err != nil {
			return shared.Actor{}, fmt.Errorf("invalid --user: %w", err)
		}
	}
	actor := shared.NewActor(tenantID, userID)
	if err := actor.Validate(); err != nil {
		return shared.Actor{}, err
	}
	return actor, nil
}

// session is the configuration, logger and database a command runs with
type session struct {
	cfg *config.Config
	log *zap.Logger
	db  *persistence.Database
}

func (o *globalOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log := logger.NewWriter(cmd.ErrOrStderr(), o.logLevel)
	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Debug("Database connected")
	return &session{cfg: cfg, log: log, db: db}, nil
}

func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warn("Error closing database", zap.Error(err))
	}
	_ = s.log.Sync()
}

func (s *session) analytics() *appledger.AnalyticsService {
	return appledger.NewAnalyticsService(
		persistence.NewGormReceivableRepository(s.db.DB),
		persistence.NewGormPaymentEventRepository(s.db.DB),
		appledger.WithTrendMonths(s.cfg.Ledger.TrendMonths),
		appledger.WithTopDebtors(s.cfg.Ledger.TopDebtorsLimit),
	)
}

// parseAsOf reads an evaluation date in YYYY-MM-DD form; empty means today.
// Overdue status is calendar based, so the date is taken at midnight UTC.
func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q, use YYYY-MM-DD: %w", raw, err)
	}
	return t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
