// provio is the credential provisioning and audit service.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "provio",
	Short: "Automated credential provisioning and audit service",
	Long: `provio provisions platform credentials with synthesized usernames,
policy-compliant passwords, and synthetic demographics, and records a
tamper-evident audit trail of every operation.`,
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
