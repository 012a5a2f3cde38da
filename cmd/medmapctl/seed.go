package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medmap-diagnosis-server/internal/database"
	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/repository"
	"github.com/medmap-diagnosis-server/internal/seed"
	"github.com/medmap-diagnosis-server/internal/sqlstore"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a disease corpus into PostgreSQL or a SQLite store",
		Long: `Load a disease corpus file (.json, .yaml, .yml or .csv) and upsert it by
disease name. Without --file the bundled corpus is loaded. With --sqlite the
target is the SQLite database at that path; otherwise PostgreSQL from the
server configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			sqlitePath, _ := cmd.Flags().GetString("sqlite")

			docs, err := loadCorpus(file)
			if err != nil {
				return err
			}

			logger, err := commandLogger(cmd)
			if err != nil {
				return err
			}

			var n int
			if sqlitePath != "" {
				store, err := sqlstore.Open(sqlitePath, logger)
				if err != nil {
					return err
				}
				defer store.Close()

				n, err = store.UpsertDiseases(cmd.Context(), docs)
				if err != nil {
					return fmt.Errorf("seeding SQLite store: %w", err)
				}
			} else {
				manager, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				db, err := database.NewConnection(cmd.Context(), database.ConfigFrom(manager.GetConfig().Database), logger)
				if err != nil {
					return err
				}
				defer db.Close()

				n, err = repository.NewDiseaseRepository(db.Pool, logger).UpsertDiseases(cmd.Context(), docs)
				if err != nil {
					return fmt.Errorf("seeding PostgreSQL: %w", err)
				}
			}

			printf(cmd, "Upserted %d disease(s).\n", n)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Corpus file to load (default: bundled corpus)")
	cmd.Flags().String("sqlite", "", "Seed the SQLite database at this path instead of PostgreSQL")
	return cmd
}

// loadCorpus reads file, or the bundled corpus when file is empty
func loadCorpus(file string) ([]domain.DiseaseDocument, error) {
	if file == "" {
		return seed.Default()
	}
	return seed.LoadFile(file)
}
