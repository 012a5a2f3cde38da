package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
)

// CorpusService manages the disease corpus and keeps the index current
type CorpusService struct {
	store  domain.CorpusStore
	index  *CorpusIndex
	logger *logrus.Logger
}

// NewCorpusService creates a corpus service
func NewCorpusService(store domain.CorpusStore, index *CorpusIndex, logger *logrus.Logger) *CorpusService {
	return &CorpusService{store: store, index: index, logger: logger}
}

// List returns every disease document
func (s *CorpusService) List(ctx context.Context) ([]domain.DiseaseDocument, error) {
	docs, err := s.store.ListDiseases(ctx)
	if err != nil {
		return nil, domain.AsStoreUnavailable("list diseases", err)
	}
	if docs == nil {
		docs = []domain.DiseaseDocument{}
	}
	return docs, nil
}

// Get returns the document named name
func (s *CorpusService) Get(ctx context.Context, name string) (*domain.DiseaseDocument, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewInvalidInputError("name", "disease name is required", nil)
	}
	doc, err := s.store.GetDisease(ctx, name)
	if err != nil {
		return nil, domain.AsStoreUnavailable("get disease", err)
	}
	return doc, nil
}

// Upsert inserts or replaces documents by name and invalidates the index.
// Later entries win when a batch repeats a name.
func (s *CorpusService) Upsert(ctx context.Context, docs []domain.DiseaseDocument) (int, error) {
	if len(docs) == 0 {
		return 0, domain.NewInvalidInputError("diseases", "at least one disease is required", nil)
	}

	position := make(map[string]int, len(docs))
	batch := make([]domain.DiseaseDocument, 0, len(docs))
	for i, d := range docs {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return 0, domain.NewInvalidInputError(fmt.Sprintf("diseases[%d].disease", i), "disease name is required", nil)
		}
		d.SymptomText = strings.TrimSpace(d.SymptomText)
		d.HealthTip = strings.TrimSpace(d.HealthTip)
		if p, ok := position[d.Name]; ok {
			batch[p] = d
			continue
		}
		position[d.Name] = len(batch)
		batch = append(batch, d)
	}

	n, err := s.store.UpsertDiseases(ctx, batch)
	if err != nil {
		return 0, domain.AsStoreUnavailable("upsert diseases", err)
	}
	s.index.Invalidate()

	s.logger.WithField("count", n).Info("Disease corpus updated")
	return n, nil
}
