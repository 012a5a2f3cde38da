package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
)

// DiseaseRepository handles disease corpus persistence
type DiseaseRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDiseaseRepository creates a new disease repository
func NewDiseaseRepository(db *pgxpool.Pool, logger *logrus.Logger) *DiseaseRepository {
	return &DiseaseRepository{
		db:  db,
		log: logger,
	}
}

// ListDiseases returns the whole corpus ordered by id, so corpus order is
// insertion order.
func (r *DiseaseRepository) ListDiseases(ctx context.Context) ([]domain.DiseaseDocument, error) {
	query := `
		SELECT id, name, symptom_text, symptoms, health_tip, updated_at
		FROM diseases
		ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.log.WithError(err).Error("Failed to list diseases")
		return nil, fmt.Errorf("listing diseases: %w", err)
	}
	defer rows.Close()

	var docs []domain.DiseaseDocument
	for rows.Next() {
		var doc domain.DiseaseDocument
		if err := rows.Scan(
			&doc.ID,
			&doc.Name,
			&doc.SymptomText,
			&doc.Symptoms,
			&doc.HealthTip,
			&doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning disease: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diseases: %w", err)
	}

	return docs, nil
}

// UpsertDiseases inserts or replaces documents by name in one transaction
func (r *DiseaseRepository) UpsertDiseases(ctx context.Context, docs []domain.DiseaseDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO diseases (name, symptom_text, symptoms, health_tip)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			symptom_text = EXCLUDED.symptom_text,
			symptoms = EXCLUDED.symptoms,
			health_tip = EXCLUDED.health_tip,
			updated_at = NOW()`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning corpus upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, doc := range docs {
		symptoms := doc.Symptoms
		if symptoms == nil {
			symptoms = []string{}
		}
		batch.Queue(query, doc.Name, doc.SymptomText, symptoms, doc.HealthTip)
	}

	results := tx.SendBatch(ctx, batch)
	for _, doc := range docs {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.log.WithFields(logrus.Fields{
				"disease": doc.Name,
				"error":   err,
			}).Error("Failed to upsert disease")
			return 0, fmt.Errorf("upserting disease %q: %w", doc.Name, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing corpus batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing corpus upsert: %w", err)
	}

	r.log.WithField("count", len(docs)).Info("Disease corpus upserted")
	return len(docs), nil
}

// GetDisease retrieves a single disease document by name
func (r *DiseaseRepository) GetDisease(ctx context.Context, name string) (*domain.DiseaseDocument, error) {
	query := `
		SELECT id, name, symptom_text, symptoms, health_tip, updated_at
		FROM diseases
		WHERE name = $1`

	var doc domain.DiseaseDocument
	err := r.db.QueryRow(ctx, query, name).Scan(
		&doc.ID,
		&doc.Name,
		&doc.SymptomText,
		&doc.Symptoms,
		&doc.HealthTip,
		&doc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("disease %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting disease: %w", err)
	}
	return &doc, nil
}
