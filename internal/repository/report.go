package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// ReportRepository handles the diagnosis report log
type ReportRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *pgxpool.Pool, logger *logrus.Logger) *ReportRepository {
	return &ReportRepository{
		db:  db,
		log: logger,
	}
}

// CreateReport appends a report. disease_id is resolved from the disease
// name when the corpus holds a matching document.
func (r *ReportRepository) CreateReport(ctx context.Context, report *domain.Report) error {
	query := `
		INSERT INTO diagnosis_reports (
			id, user_id, disease, disease_id, symptoms_text, similarity_score,
			latitude, longitude, severity, source, created_at
		) VALUES (
			$1, $2, $3::text, (SELECT id FROM diseases WHERE name = $3::text),
			$4, $5, $6, $7, $8, $9, $10
		)`

	var lat, lng *float64
	if report.Location != nil {
		lat = &report.Location.Latitude
		lng = &report.Location.Longitude
	}

	_, err := r.db.Exec(ctx, query,
		report.ID,
		nullString(report.UserID),
		nullString(report.Disease),
		report.SymptomsText,
		report.SimilarityScore,
		lat,
		lng,
		nullString(string(report.Severity)),
		string(report.Source),
		report.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"report_id": report.ID,
			"disease":   report.Disease,
			"error":     err,
		}).Error("Failed to create report")
		return fmt.Errorf("creating report: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"report_id": report.ID,
		"disease":   report.Disease,
		"source":    report.Source,
	}).Debug("Report created")

	return nil
}

// QueryReports returns reports matching q ordered by creation time
func (r *ReportRepository) QueryReports(ctx context.Context, q domain.ReportQuery) ([]domain.Report, error) {
	query, args := buildReportQuery(q)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to query reports")
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		var (
			rep                 domain.Report
			userID, disease     *string
			severity            *string
			source              string
			latitude, longitude *float64
		)
		if err := rows.Scan(
			&rep.ID,
			&userID,
			&disease,
			&rep.SymptomsText,
			&rep.SimilarityScore,
			&latitude,
			&longitude,
			&severity,
			&source,
			&rep.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		if userID != nil {
			rep.UserID = *userID
		}
		if disease != nil {
			rep.Disease = *disease
		}
		if severity != nil {
			rep.Severity = domain.Severity(*severity)
		}
		if latitude != nil && longitude != nil {
			rep.Location = &geo.Point{Latitude: *latitude, Longitude: *longitude}
		}
		rep.Source = domain.ReportSource(source)
		rep.CreatedAt = rep.CreatedAt.UTC()
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}

	return reports, nil
}

// Ping checks that the database is reachable
func (r *ReportRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// buildReportQuery renders q as a parameterized SELECT
func buildReportQuery(q domain.ReportQuery) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.Disease != "" {
		add("disease = $%d", q.Disease)
	}
	if q.Severity != "" {
		add("severity = $%d", string(q.Severity))
	}
	if q.Source != "" {
		add("source = $%d", string(q.Source))
	}
	if q.RequireLocation || q.Box != nil {
		where = append(where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	}
	if q.Box != nil {
		add("latitude >= $%d", q.Box.MinLatitude)
		add("latitude <= $%d", q.Box.MaxLatitude)
		add("longitude >= $%d", q.Box.MinLongitude)
		add("longitude <= $%d", q.Box.MaxLongitude)
	}
	if !q.Since.IsZero() {
		add("created_at >= $%d", q.Since)
	}
	if !q.Until.IsZero() {
		add("created_at <= $%d", q.Until)
	}
	if !q.Before.IsZero() {
		add("created_at < $%d", q.Before)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id::text, user_id, disease, symptoms_text, similarity_score,
		latitude, longitude, severity, source, created_at
		FROM diagnosis_reports`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if q.NewestFirst {
		sb.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		sb.WriteString(" ORDER BY created_at ASC, id ASC")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	return sb.String(), args
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
