package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "medmap.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "medmap.db")

	store, err := Open(dbPath, testLogger())
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.NoError(t, store.Ping(context.Background()))
}

func TestStore_Diseases(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	docs, err := store.ListDiseases(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	n, err := store.UpsertDiseases(ctx, []domain.DiseaseDocument{
		{Name: "Flu", SymptomText: "fever cough fatigue", HealthTip: "Rest"},
		{Name: "Cold", Symptoms: []string{"cough", "sneeze"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.UpsertDiseases(ctx, []domain.DiseaseDocument{{Name: "Flu", SymptomText: "fever aches", HealthTip: "Fluids"}})
	require.NoError(t, err)

	docs, err = store.ListDiseases(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Flu", docs[0].Name)
	assert.Equal(t, "fever aches", docs[0].SymptomText)
	assert.Equal(t, "Fluids", docs[0].HealthTip)
	assert.Empty(t, docs[0].Symptoms)
	assert.Equal(t, []string{"cough", "sneeze"}, docs[1].Symptoms)
	assert.False(t, docs[1].UpdatedAt.IsZero())

	count, err := store.CountDiseases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	doc, err := store.GetDisease(ctx, "Cold")
	require.NoError(t, err)
	assert.Equal(t, "cough sneeze", doc.Text())

	_, err = store.GetDisease(ctx, "Plague")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_Reports(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	point := &geo.Point{Latitude: 10, Longitude: 20}
	reports := []*domain.Report{
		{ID: uuid.NewString(), Disease: "Malaria", SimilarityScore: 0.8, Location: point, Source: domain.SourceDiagnosis, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: uuid.NewString(), Disease: "Malaria", SimilarityScore: 0.6, Location: point, Source: domain.SourceDiagnosis, CreatedAt: now.Add(-7 * 24 * time.Hour)},
		{ID: uuid.NewString(), Disease: "Dengue", Location: &geo.Point{Latitude: 50, Longitude: 50}, Severity: domain.SeverityHigh, Source: domain.SourceSubmitted, CreatedAt: now},
		{ID: uuid.NewString(), SymptomsText: "xyz", UserID: "user-1", Source: domain.SourceDiagnosis, CreatedAt: now},
	}
	for _, r := range reports {
		require.NoError(t, store.CreateReport(ctx, r))
	}

	all, err := store.QueryReports(ctx, domain.ReportQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, reports[0].ID, all[0].ID)
	assert.Equal(t, point, all[0].Location)
	assert.True(t, reports[0].CreatedAt.Equal(all[0].CreatedAt))
	assert.Empty(t, all[3].Disease)
	assert.Nil(t, all[3].Location)
	assert.Equal(t, "user-1", all[3].UserID)

	t.Run("window boundary belongs to current", func(t *testing.T) {
		boundary := now.Add(-7 * 24 * time.Hour)

		current, err := store.QueryReports(ctx, domain.ReportQuery{Disease: "Malaria", Since: boundary, Until: now})
		require.NoError(t, err)
		require.Len(t, current, 1)
		assert.Equal(t, reports[1].ID, current[0].ID)

		historical, err := store.QueryReports(ctx, domain.ReportQuery{Disease: "Malaria", Before: boundary})
		require.NoError(t, err)
		require.Len(t, historical, 1)
		assert.Equal(t, reports[0].ID, historical[0].ID)
	})

	t.Run("bounding box", func(t *testing.T) {
		box := geo.BoundingBox(*point, 5000)
		got, err := store.QueryReports(ctx, domain.ReportQuery{Box: &box})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("require location", func(t *testing.T) {
		got, err := store.QueryReports(ctx, domain.ReportQuery{RequireLocation: true})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("severity and source", func(t *testing.T) {
		got, err := store.QueryReports(ctx, domain.ReportQuery{Severity: domain.SeverityHigh, Source: domain.SourceSubmitted})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Dengue", got[0].Disease)
	})

	t.Run("pagination newest first", func(t *testing.T) {
		got, err := store.QueryReports(ctx, domain.ReportQuery{NewestFirst: true, Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, reports[2].ID, got[0].ID)
		assert.Equal(t, reports[1].ID, got[1].ID)

		rest, err := store.QueryReports(ctx, domain.ReportQuery{Offset: 3})
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, reports[3].ID, rest[0].ID)
	})
}

func TestStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateReport(ctx, &domain.Report{
		ID: uuid.NewString(), Disease: "Flu", Source: domain.SourceDiagnosis, CreatedAt: time.Now(),
	}))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export ReportExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 1, export.Count)
	assert.Equal(t, "Flu", export.Reports[0].Disease)
}

func TestStore_InsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, testLogger())
	mock.ExpectExec("INSERT INTO diagnosis_reports").WillReturnError(errors.New("database is locked"))

	err = store.CreateReport(context.Background(), &domain.Report{ID: "r1", Source: domain.SourceDiagnosis, CreatedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CorruptSymptoms(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, testLogger())
	rows := sqlmock.NewRows([]string{"id", "name", "symptom_text", "symptoms", "health_tip", "updated_at_ns"}).
		AddRow(1, "Flu", "fever", "not-json", "", time.Now().UnixNano())
	mock.ExpectQuery("SELECT id, name, symptom_text").WillReturnRows(rows)

	_, err = store.ListDiseases(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding symptoms")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, testLogger())
	mock.ExpectQuery("FROM diagnosis_reports").WillReturnError(errors.New("no such table"))

	_, err = store.QueryReports(context.Background(), domain.ReportQuery{Disease: "Flu"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
