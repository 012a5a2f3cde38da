package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// Report listing bounds
const (
	DefaultReportPageSize = 100
	MaxReportPageSize     = 1000
)

// SubmitReportParams is a manually submitted disease report
type SubmitReportParams struct {
	Disease  string     `json:"disease"`
	Location *geo.Point `json:"location"`
	Severity string     `json:"severity"`
	UserID   string     `json:"userId,omitempty"`
}

// ReportService accepts submitted disease reports and lists the report log
type ReportService struct {
	reports domain.ReportStore
	logger  *logrus.Logger
	now     func() time.Time
}

// NewReportService creates a report service
func NewReportService(reports domain.ReportStore, logger *logrus.Logger) *ReportService {
	return &ReportService{reports: reports, logger: logger, now: time.Now}
}

// Submit validates and appends a submitted report
func (s *ReportService) Submit(ctx context.Context, params SubmitReportParams) (*domain.Report, error) {
	disease := strings.TrimSpace(params.Disease)
	if disease == "" {
		return nil, domain.NewInvalidInputError("disease", "disease is required", nil)
	}
	if params.Location == nil {
		return nil, domain.NewInvalidInputError("location", "location is required", nil)
	}
	if err := params.Location.Validate(); err != nil {
		return nil, domain.NewInvalidInputError("location", err.Error(), params.Location)
	}
	severity, err := domain.ParseSeverity(params.Severity)
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(params.UserID),
		Disease:   disease,
		Location:  params.Location,
		Severity:  severity,
		Source:    domain.SourceSubmitted,
		CreatedAt: s.now().UTC(),
	}
	if err := s.reports.CreateReport(ctx, report); err != nil {
		s.logger.WithError(err).WithField("disease", disease).Error("Failed to store submitted report")
		return nil, domain.AsStoreUnavailable("create report", err)
	}

	s.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"disease":   disease,
		"severity":  severity,
	}).Info("Disease report submitted")
	return report, nil
}

// List returns the report log newest first. A zero limit uses the default
// page size.
func (s *ReportService) List(ctx context.Context, limit, offset int) ([]domain.Report, error) {
	if limit < 0 || limit > MaxReportPageSize {
		return nil, domain.NewInvalidInputError("limit", "must be between 0 and 1000", limit)
	}
	if offset < 0 {
		return nil, domain.NewInvalidInputError("offset", "must not be negative", offset)
	}
	if limit == 0 {
		limit = DefaultReportPageSize
	}

	reports, err := s.reports.QueryReports(ctx, domain.ReportQuery{
		NewestFirst: true,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, domain.AsStoreUnavailable("query reports", err)
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	return reports, nil
}
