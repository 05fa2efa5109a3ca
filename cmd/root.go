package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "opsgate",
	Short: "DevOps operations API with permission-aware gateway routing",
	Long: `Opsgate exposes logs, metrics, deployment, and rollback operations behind
a role-based permission engine. Operations run against local backends or are
proxied through an external MCP gateway, selected at startup.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
