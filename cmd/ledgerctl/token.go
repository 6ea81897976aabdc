package main

import (
	"fmt"
	"time"

	"github.com/erp/receivables/internal/infrastructure/auth"
	"github.com/erp/receivables/internal/infrastructure/migration"
	"github.com/spf13/cobra"
)

// tokenOutput is what the token command prints
type tokenOutput struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
}

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a tenant and user",
		Long: `Signs a bearer token with the configured JWT secret. Integrations and
scheduled jobs use it to call the HTTP API as the given tenant and user.`,
		Example: `  ledgerctl token --tenant 1b4e28ba-2fa1-11d2-883f-0016d3cca427 \
    --user 6ba7b810-9dad-11d1-80b4-00c04fd430c8 --ttl 1h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := opts.actor()
			if err != nil {
				return err
			}
			if opts.user == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("jwt.secret is not configured")
			}

			token, expiresAt, err := auth.NewJWTService(cfg.JWT).GenerateToken(actor, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), tokenOutput{
				AccessToken: token,
				TokenType:   "Bearer",
				ExpiresAt:   expiresAt,
				TenantID:    actor.TenantID.String(),
				UserID:      actor.UserID.String(),
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default jwt.access_token_expiration)")
	return cmd
}

func newMigrateStatusCmd(opts *globalOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate-status",
		Short: "Show the schema migration state of the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			sqlDB, err := s.db.DB.DB()
			if err != nil {
				return err
			}
			m, err := migration.New(sqlDB, path, s.log)
			if err != nil {
				return err
			}
			st, err := m.Status()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"current": st.Current,
				"latest":  st.Latest,
				"pending": st.Pending,
				"dirty":   st.Dirty,
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Migrations directory (default: embedded migrations)")
	return cmd
}
