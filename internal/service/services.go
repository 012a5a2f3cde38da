package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
)

// Services bundles the application services shared by the HTTP API, the MCP
// tool server and the CLI
type Services struct {
	Corpus    *CorpusService
	Index     *CorpusIndex
	Diagnosis *DiagnosisService
	Clusters  *ClusterService
	Outbreaks *OutbreakDetector
	Reports   *ReportService

	reportStore domain.ReportStore
}

// Build wires the services over the given stores. cache may be nil.
func Build(cfg *domain.Config, corpus domain.CorpusStore, reports domain.ReportStore, cache domain.RankingCache, logger *logrus.Logger) *Services {
	index := NewCorpusIndex(corpus, cfg.Diagnosis.CorpusRefresh, logger)
	return &Services{
		Corpus:      NewCorpusService(corpus, index, logger),
		Index:       index,
		Diagnosis:   NewDiagnosisService(index, reports, cache, cfg.Diagnosis, logger),
		Clusters:    NewClusterService(reports, cfg.Clusters, logger),
		Outbreaks:   NewOutbreakDetector(reports, cfg.Outbreak, logger),
		Reports:     NewReportService(reports, logger),
		reportStore: reports,
	}
}

// Ping checks that the report store is reachable
func (s *Services) Ping(ctx context.Context) error {
	return s.reportStore.Ping(ctx)
}
