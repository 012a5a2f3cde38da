// Package sqlstore implements the corpus and report stores on an embedded
// SQLite database for standalone operation.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// Store implements domain.CorpusStore and domain.ReportStore using SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// Open creates or opens the SQLite database at dbPath, creating the file
// and schema if they don't exist.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// shared across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite store opened")

	return &Store{
		db:     db,
		dbPath: dbPath,
		log:    logger,
	}, nil
}

// New wraps an existing database handle. The schema must already exist.
func New(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, log: logger}
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS diseases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		symptom_text TEXT NOT NULL DEFAULT '',
		symptoms TEXT NOT NULL DEFAULT '[]',
		health_tip TEXT NOT NULL DEFAULT '',
		updated_at_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS diagnosis_reports (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		disease TEXT,
		symptoms_text TEXT NOT NULL DEFAULT '',
		similarity_score REAL NOT NULL DEFAULT 0,
		latitude REAL,
		longitude REAL,
		severity TEXT,
		source TEXT NOT NULL,
		created_at_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_location ON diagnosis_reports(latitude, longitude);
	CREATE INDEX IF NOT EXISTS idx_reports_disease_created ON diagnosis_reports(disease, created_at_ns);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON diagnosis_reports(created_at_ns);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDisease(s scanner) (*domain.DiseaseDocument, error) {
	doc := &domain.DiseaseDocument{}
	var symptoms string
	var updatedNS int64

	if err := s.Scan(&doc.ID, &doc.Name, &doc.SymptomText, &symptoms, &doc.HealthTip, &updatedNS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(symptoms), &doc.Symptoms); err != nil {
		return nil, fmt.Errorf("decoding symptoms of %q: %w", doc.Name, err)
	}
	doc.UpdatedAt = time.Unix(0, updatedNS).UTC()
	return doc, nil
}

func scanReport(s scanner) (*domain.Report, error) {
	rep := &domain.Report{}
	var (
		userID, disease, severity sql.NullString
		latitude, longitude       sql.NullFloat64
		source                    string
		createdNS                 int64
	)

	if err := s.Scan(
		&rep.ID, &userID, &disease, &rep.SymptomsText, &rep.SimilarityScore,
		&latitude, &longitude, &severity, &source, &createdNS,
	); err != nil {
		return nil, err
	}

	rep.UserID = userID.String
	rep.Disease = disease.String
	rep.Severity = domain.Severity(severity.String)
	rep.Source = domain.ReportSource(source)
	if latitude.Valid && longitude.Valid {
		rep.Location = &geo.Point{Latitude: latitude.Float64, Longitude: longitude.Float64}
	}
	rep.CreatedAt = time.Unix(0, createdNS).UTC()
	return rep, nil
}

// ListDiseases returns the corpus in insertion order.
func (s *Store) ListDiseases(ctx context.Context) ([]domain.DiseaseDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, symptom_text, symptoms, health_tip, updated_at_ns
		FROM diseases
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query diseases: %w", err)
	}
	defer rows.Close()

	var docs []domain.DiseaseDocument
	for rows.Next() {
		doc, err := scanDisease(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan disease: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// GetDisease returns the document named name.
func (s *Store) GetDisease(ctx context.Context, name string) (*domain.DiseaseDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, symptom_text, symptoms, health_tip, updated_at_ns
		FROM diseases
		WHERE name = ?
	`, name)

	doc, err := scanDisease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("disease %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan disease: %w", err)
	}
	return doc, nil
}

// UpsertDiseases inserts or replaces documents by name in one transaction.
func (s *Store) UpsertDiseases(ctx context.Context, docs []domain.DiseaseDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO diseases (name, symptom_text, symptoms, health_tip, updated_at_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			symptom_text = excluded.symptom_text,
			symptoms = excluded.symptoms,
			health_tip = excluded.health_tip,
			updated_at_ns = excluded.updated_at_ns
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, doc := range docs {
		symptoms := doc.Symptoms
		if symptoms == nil {
			symptoms = []string{}
		}
		encoded, err := json.Marshal(symptoms)
		if err != nil {
			return 0, fmt.Errorf("failed to encode symptoms: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, doc.Name, doc.SymptomText, string(encoded), doc.HealthTip, now); err != nil {
			return 0, fmt.Errorf("failed to upsert disease %q: %w", doc.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit corpus: %w", err)
	}

	s.log.WithField("count", len(docs)).Info("Disease corpus upserted")
	return len(docs), nil
}

// CountDiseases returns the corpus size.
func (s *Store) CountDiseases(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diseases").Scan(&count)
	return count, err
}

// CreateReport appends a report to the log.
func (s *Store) CreateReport(ctx context.Context, report *domain.Report) error {
	var lat, lng interface{}
	if report.Location != nil {
		lat = report.Location.Latitude
		lng = report.Location.Longitude
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnosis_reports (
			id, user_id, disease, symptoms_text, similarity_score,
			latitude, longitude, severity, source, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		nullString(report.UserID),
		nullString(report.Disease),
		report.SymptomsText,
		report.SimilarityScore,
		lat,
		lng,
		nullString(string(report.Severity)),
		string(report.Source),
		report.CreatedAt.UnixNano(),
	)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"report_id": report.ID,
			"error":     err,
		}).Error("Failed to insert report")
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// QueryReports returns reports matching q ordered by creation time.
func (s *Store) QueryReports(ctx context.Context, q domain.ReportQuery) ([]domain.Report, error) {
	query, args := buildReportQuery(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *rep)
	}
	return reports, rows.Err()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func buildReportQuery(q domain.ReportQuery) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, value interface{}) {
		where = append(where, clause)
		args = append(args, value)
	}

	if q.Disease != "" {
		add("disease = ?", q.Disease)
	}
	if q.Severity != "" {
		add("severity = ?", string(q.Severity))
	}
	if q.Source != "" {
		add("source = ?", string(q.Source))
	}
	if q.RequireLocation || q.Box != nil {
		where = append(where, "latitude IS NOT NULL AND longitude IS NOT NULL")
	}
	if q.Box != nil {
		add("latitude >= ?", q.Box.MinLatitude)
		add("latitude <= ?", q.Box.MaxLatitude)
		add("longitude >= ?", q.Box.MinLongitude)
		add("longitude <= ?", q.Box.MaxLongitude)
	}
	if !q.Since.IsZero() {
		add("created_at_ns >= ?", q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		add("created_at_ns <= ?", q.Until.UnixNano())
	}
	if !q.Before.IsZero() {
		add("created_at_ns < ?", q.Before.UnixNano())
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, user_id, disease, symptoms_text, similarity_score,
		latitude, longitude, severity, source, created_at_ns
		FROM diagnosis_reports`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if q.NewestFirst {
		sb.WriteString(" ORDER BY created_at_ns DESC, rowid DESC")
	} else {
		sb.WriteString(" ORDER BY created_at_ns ASC, rowid ASC")
	}
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, q.Offset)
	}

	return sb.String(), args
}

// ReportExport is the JSON document written by ExportJSON.
type ReportExport struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Count      int             `json:"count"`
	Reports    []domain.Report `json:"reports"`
}

// ExportJSON writes every report, oldest first, to writer.
func (s *Store) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.QueryReports(ctx, domain.ReportQuery{})
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	export := &ReportExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Reports:    all,
	}
	if export.Reports == nil {
		export.Reports = []domain.Report{}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
