package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/metrics"
	"github.com/medmap-diagnosis-server/pkg/tfidf"
)

// scoreTolerance absorbs floating point drift above a cosine of 1.
const scoreTolerance = 1e-9

// DiagnosisService ranks diseases for a symptom list and records each call
// in the report log
type DiagnosisService struct {
	index   *CorpusIndex
	reports domain.ReportStore
	cache   domain.RankingCache
	cfg     domain.DiagnosisConfig
	logger  *logrus.Logger
	now     func() time.Time
	newID   func() string
}

// NewDiagnosisService creates a diagnosis service. A nil cache disables
// result caching.
func NewDiagnosisService(
	index *CorpusIndex,
	reports domain.ReportStore,
	cache domain.RankingCache,
	cfg domain.DiagnosisConfig,
	logger *logrus.Logger,
) *DiagnosisService {
	return &DiagnosisService{
		index:   index,
		reports: reports,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// NormalizeSymptoms trims each symptom, drops blanks and removes
// case-insensitive duplicates keeping the first spelling
func NormalizeSymptoms(symptoms []string) []string {
	seen := make(map[string]bool, len(symptoms))
	out := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Diagnose ranks the corpus against the query symptoms and persists one
// report carrying the best match
func (s *DiagnosisService) Diagnose(ctx context.Context, query domain.DiagnosisQuery) (*domain.DiagnosisResult, error) {
	symptoms := NormalizeSymptoms(query.Symptoms)
	if len(symptoms) == 0 {
		return nil, domain.NewInvalidInputError("symptoms", "at least one symptom is required", nil)
	}
	if query.Location != nil {
		if err := query.Location.Validate(); err != nil {
			return nil, domain.NewInvalidInputError("location", err.Error(), query.Location)
		}
	}

	snap, err := s.index.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	text := strings.Join(symptoms, " ")
	candidates, err := s.rank(ctx, snap, text)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"corpus_version": snap.Version,
			"query":          text,
		}).Error("Ranking produced an inconsistent result")
		return nil, err
	}

	result := &domain.DiagnosisResult{
		QuerySymptoms: symptoms,
		Candidates:    candidates,
		CorpusVersion: snap.Version,
	}

	report := &domain.Report{
		ID:           s.newID(),
		UserID:       strings.TrimSpace(query.UserID),
		SymptomsText: text,
		Location:     query.Location,
		Source:       domain.SourceDiagnosis,
		CreatedAt:    s.now().UTC(),
	}
	if len(candidates) > 0 {
		report.Disease = candidates[0].Disease
		report.SimilarityScore = candidates[0].Confidence
		metrics.RecordDiagnosis("matched")
	} else {
		metrics.RecordDiagnosis("no_match")
	}

	if err := s.reports.CreateReport(ctx, report); err != nil {
		metrics.RecordPersistFailure()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"report_id": report.ID,
			"disease":   report.Disease,
		}).Warn("Failed to persist diagnosis report")
		if s.cfg.PersistMode == domain.PersistFailClosed {
			return nil, domain.AsStoreUnavailable("create report", err)
		}
		return result, nil
	}

	result.ReportID = report.ID
	result.Persisted = true
	return result, nil
}

// rank returns the candidates for text, from the cache when possible. Scores
// outside [0,1] or indexes past the snapshot are an InvariantViolation.
func (s *DiagnosisService) rank(ctx context.Context, snap *CorpusSnapshot, text string) ([]domain.ScoredCandidate, error) {
	key := s.rankingKey(snap.Version, text)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			metrics.RecordCacheLookup(true)
			return cached, nil
		}
		metrics.RecordCacheLookup(false)
	}

	scored := tfidf.Rank(snap.Model.Similarities(text), s.cfg.Threshold, s.cfg.MaxCandidates)
	candidates := make([]domain.ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		if sc.Index < 0 || sc.Index >= len(snap.Documents) {
			return nil, &domain.InvariantViolation{
				Detail: fmt.Sprintf("candidate index %d outside corpus of %d", sc.Index, len(snap.Documents)),
			}
		}
		if !(sc.Score >= 0 && sc.Score <= 1+scoreTolerance) {
			return nil, &domain.InvariantViolation{
				Detail: fmt.Sprintf("similarity %v outside [0,1]", sc.Score),
			}
		}
		doc := snap.Documents[sc.Index]
		candidates = append(candidates, domain.ScoredCandidate{
			Disease:    doc.Name,
			Confidence: min(sc.Score, 1),
			HealthTip:  doc.HealthTip,
		})
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, candidates)
	}
	return candidates, nil
}

// rankingKey identifies a ranking by corpus version, ranking settings and
// lower-cased query text
func (s *DiagnosisService) rankingKey(version, text string) string {
	settings := fmt.Sprintf("%g/%d/", s.cfg.Threshold, s.cfg.MaxCandidates)
	sum := sha256.Sum256([]byte(settings + strings.ToLower(text)))
	return version + ":" + hex.EncodeToString(sum[:])
}
