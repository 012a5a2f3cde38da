// Command medmapctl administers a MedMap deployment: schema migrations,
// corpus seeding, report export and offline diagnosis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/medmap-diagnosis-server/internal/config"
	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "medmapctl",
		Short:         "MedMap administration tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to the server config file")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for command output on stderr")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(reportsCmd())

	return rootCmd
}

// commandLogger writes to stderr so stdout stays machine readable
func commandLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.New(domain.LoggingConfig{Level: level, Format: "text", Output: "stderr"})
}

// loadConfig reads the server configuration named by --config
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	path, _ := cmd.Flags().GetString("config")
	manager, err := config.NewManagerWithFile(path)
	if err != nil {
		return nil, err
	}
	return manager, nil
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
