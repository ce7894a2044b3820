// Package cli is the kaushal command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/config"
)

// Version is stamped at build time.
var Version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "kaushal",
	Short: "Sports assessment video capture and analysis",
	Long: `kaushal records short sports assessment clips, uploads them for AI
analysis and reports the resulting performance score.

Commands:
  serve    run the ingestion and analysis server
  record   record a clip from the camera, upload it and wait for the result
  upload   upload an existing clip file and wait for the result
  watch    follow the status of one assessment
  e2e      verify a running server end to end
  migrate  apply database migrations and exit`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			return os.Setenv(config.EnvConfigFile, configFile)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kaushal version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(e2eCmd)
}

// Root returns the root command.
func Root() *cobra.Command { return rootCmd }

// Execute runs the command tree with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
