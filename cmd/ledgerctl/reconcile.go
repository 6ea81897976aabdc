package main

import (
	"fmt"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/infrastructure/lock"
	"github.com/erp/receivables/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReconcileCmd(opts *globalOptions) *cobra.Command {
	var (
		receivable string
		repair     bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored balances with the payment ledger",
		Long: `Recomputes every receivable of the tenant from its payment events and
reports balance, status and audit trail discrepancies as JSON.

With --repair the stored balances are corrected under the receivable lock and
the missing history is appended. Existing history is never rewritten.`,
		Example: `  # Check a whole tenant
  ledgerctl reconcile --tenant 1b4e28ba-2fa1-11d2-883f-0016d3cca427

  # Repair one receivable
  ledgerctl reconcile --tenant 1b4e28ba-2fa1-11d2-883f-0016d3cca427 \
    --receivable 6ba7b810-9dad-11d1-80b4-00c04fd430c8 --repair`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := opts.actor()
			if err != nil {
				return err
			}
			command := appledger.ReconcileCommand{Actor: actor, Repair: repair}
			if receivable != "" {
				id, err := uuid.Parse(receivable)
				if err != nil {
					return fmt.Errorf("invalid --receivable: %w", err)
				}
				command.ReceivableID = &id
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			locker, err := lock.NewLockerFactory(s.cfg.Redis, s.cfg.Ledger,
				lock.WithLogger(s.log),
				lock.WithInMemoryFallback(s.cfg.App.Env != "production"),
			).CreateLocker(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = locker.Close() }()

			svc := appledger.NewReconciliationService(
				persistence.NewGormTransactionScope(s.db.DB),
				persistence.NewGormReceivableRepository(s.db.DB),
				persistence.NewGormPaymentEventRepository(s.db.DB),
				persistence.NewGormHistoryRepository(s.db.DB),
				locker,
				nil,
				s.log,
			)
			report, err := svc.Reconcile(cmd.Context(), command)
			if err != nil {
				return err
			}
			s.log.Info("Reconciliation finished",
				zap.String("tenant_id", actor.TenantID.String()),
				zap.Int("checked", report.Checked),
				zap.Int("consistent", report.Consistent),
				zap.Int("repaired", report.Repaired),
			)
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&receivable, "receivable", "", "Check a single receivable")
	cmd.Flags().BoolVar(&repair, "repair", false, "Repair the discrepancies found")
	return cmd
}
