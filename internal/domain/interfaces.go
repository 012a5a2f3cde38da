package domain

import (
	"context"
)

// CorpusStore provides the disease reference corpus
type CorpusStore interface {
	ListDiseases(ctx context.Context) ([]DiseaseDocument, error)
	GetDisease(ctx context.Context, name string) (*DiseaseDocument, error)
	UpsertDiseases(ctx context.Context, docs []DiseaseDocument) (int, error)
}

// ReportStore is the append-only geotagged report log
type ReportStore interface {
	CreateReport(ctx context.Context, report *Report) error
	QueryReports(ctx context.Context, query ReportQuery) ([]Report, error)
	Ping(ctx context.Context) error
}

// RankingCache memoizes ranked candidates per corpus version and query.
// Implementations are best-effort and never fail the caller.
type RankingCache interface {
	Get(ctx context.Context, key string) ([]ScoredCandidate, bool)
	Set(ctx context.Context, key string, candidates []ScoredCandidate)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
