// Command ledgerctl runs receivables ledger operations from the command line:
// reconciliation, aging reports, schema status and service tokens.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; LEDGER_ variables and config.toml still apply
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
