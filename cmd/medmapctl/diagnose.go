package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/medmap-diagnosis-server/internal/cache"
	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/service"
	"github.com/medmap-diagnosis-server/internal/sqlstore"
)

func diagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose SYMPTOM [SYMPTOM...]",
		Short: "Rank diseases for the given symptoms without a running server",
		Example: `  medmapctl diagnose fever "dry cough"
  medmapctl diagnose --corpus Symptom2Disease.csv --max 3 "skin rash"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corpusFile, _ := cmd.Flags().GetString("corpus")
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			maxCandidates, _ := cmd.Flags().GetInt("max")

			docs, err := loadCorpus(corpusFile)
			if err != nil {
				return err
			}

			logger, err := commandLogger(cmd)
			if err != nil {
				return err
			}

			// A throwaway in-memory store keeps the full diagnosis path,
			// report included, without touching any deployment.
			store, err := sqlstore.Open(":memory:", logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.UpsertDiseases(cmd.Context(), docs); err != nil {
				return err
			}

			cfg := &domain.Config{
				Diagnosis: domain.DefaultDiagnosisConfig(),
				Outbreak:  domain.DefaultOutbreakConfig(),
				Clusters:  domain.DefaultClusterConfig(),
			}
			cfg.Diagnosis.Threshold = threshold
			cfg.Diagnosis.MaxCandidates = maxCandidates

			services := service.Build(cfg, store, store, cache.Noop{}, logger)
			result, err := services.Diagnosis.Diagnose(cmd.Context(), domain.DiagnosisQuery{Symptoms: args})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}
	cmd.Flags().String("corpus", "", "Corpus file to rank against (default: bundled corpus)")
	cmd.Flags().Float64("threshold", domain.DefaultDiagnosisConfig().Threshold, "Minimum similarity for a candidate")
	cmd.Flags().Int("max", 0, "Maximum candidates to return (0 = unlimited)")
	return cmd
}
