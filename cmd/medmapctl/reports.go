package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medmap-diagnosis-server/internal/sqlstore"
)

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect the report log of a lite deployment",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export every report of a SQLite store as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlitePath, _ := cmd.Flags().GetString("sqlite")
			out, _ := cmd.Flags().GetString("out")

			logger, err := commandLogger(cmd)
			if err != nil {
				return err
			}

			if _, err := os.Stat(sqlitePath); err != nil {
				return fmt.Errorf("SQLite store %s: %w", sqlitePath, err)
			}
			store, err := sqlstore.Open(sqlitePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			writer := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				writer = f
			}
			return store.ExportJSON(cmd.Context(), writer)
		},
	}
	exportCmd.Flags().String("sqlite", "", "Path to the SQLite database")
	exportCmd.Flags().String("out", "-", "Output file, - for stdout")
	_ = exportCmd.MarkFlagRequired("sqlite")
	cmd.AddCommand(exportCmd)

	return cmd
}
