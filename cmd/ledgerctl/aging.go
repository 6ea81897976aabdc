package main

import (
	"github.com/spf13/cobra"
)

func newAgingCmd(opts *globalOptions) *cobra.Command {
	var (
		asOf    string
		buckets []int
	)
	cmd := &cobra.Command{
		Use:   "aging",
		Short: "Print the overdue aging of a tenant",
		Long: `Groups the overdue open balances of the tenant by days past due.
Each --buckets value is the first day of a bucket; the last bucket is open ended.`,
		Example: `  ledgerctl aging --tenant 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --as-of 2026-03-31
  ledgerctl aging --tenant 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --buckets 1,15,30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := opts.actor()
			if err != nil {
				return err
			}
			now, err := parseAsOf(asOf)
			if err != nil {
				return err
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			totals, err := s.analytics().Aging(cmd.Context(), actor.TenantID, now, buckets)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), totals)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Evaluation date, YYYY-MM-DD (default today)")
	cmd.Flags().IntSliceVar(&buckets, "buckets", nil, "Bucket lower bounds in days (default 1,31,61,91)")
	return cmd
}

func newSummaryCmd(opts *globalOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the portfolio dashboard of a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := opts.actor()
			if err != nil {
				return err
			}
			now, err := parseAsOf(asOf)
			if err != nil {
				return err
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			dashboard, err := s.analytics().Dashboard(cmd.Context(), actor.TenantID, now)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), dashboard)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Evaluation date, YYYY-MM-DD (default today)")
	return cmd
}
