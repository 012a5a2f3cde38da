package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/metrics"
	"github.com/medmap-diagnosis-server/pkg/tfidf"
)

// CorpusSnapshot is an immutable fitted view of the corpus
type CorpusSnapshot struct {
	Version   string
	Documents []domain.DiseaseDocument
	Model     *tfidf.Model
	BuiltAt   time.Time

	generation uint64
}

// CorpusIndex serves the current snapshot and rebuilds it when the corpus
// changes or the snapshot ages out. Readers always get a complete snapshot.
type CorpusIndex struct {
	store   domain.CorpusStore
	refresh time.Duration
	logger  *logrus.Logger
	now     func() time.Time

	current    atomic.Pointer[CorpusSnapshot]
	generation atomic.Uint64
	buildMu    sync.Mutex
}

// NewCorpusIndex creates an index over store. A refresh of zero or less
// keeps a snapshot until Invalidate is called.
func NewCorpusIndex(store domain.CorpusStore, refresh time.Duration, logger *logrus.Logger) *CorpusIndex {
	return &CorpusIndex{
		store:   store,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
	}
}

// Snapshot returns the current snapshot, building it first if needed
func (ci *CorpusIndex) Snapshot(ctx context.Context) (*CorpusSnapshot, error) {
	if snap := ci.current.Load(); snap != nil && !ci.expired(snap) {
		return snap, nil
	}

	ci.buildMu.Lock()
	defer ci.buildMu.Unlock()

	// Another caller may have rebuilt while we waited.
	snap := ci.current.Load()
	if snap != nil && !ci.expired(snap) {
		return snap, nil
	}

	fresh, err := ci.build(ctx)
	if err != nil {
		if snap != nil && !errors.Is(err, tfidf.ErrEmptyCorpus) && !domain.IsCanceled(err) {
			ci.logger.WithError(err).WithField("version", snap.Version).
				Warn("Corpus refresh failed, serving previous snapshot")
			return snap, nil
		}
		return nil, err
	}

	ci.current.Store(fresh)
	return fresh, nil
}

// Invalidate forces the next Snapshot call to rebuild
func (ci *CorpusIndex) Invalidate() {
	ci.generation.Add(1)
}

func (ci *CorpusIndex) expired(snap *CorpusSnapshot) bool {
	if snap.generation != ci.generation.Load() {
		return true
	}
	return ci.refresh > 0 && ci.now().Sub(snap.BuiltAt) > ci.refresh
}

func (ci *CorpusIndex) build(ctx context.Context) (*CorpusSnapshot, error) {
	generation := ci.generation.Load()
	docs, err := ci.store.ListDiseases(ctx)
	if err != nil {
		metrics.RecordCorpusRebuild(0, err)
		if domain.IsCanceled(err) {
			return nil, err
		}
		return nil, &domain.NoCorpusError{Reason: "corpus store unreachable", Err: err}
	}

	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Text()
	}

	model, err := tfidf.Fit(texts)
	if err != nil {
		metrics.RecordCorpusRebuild(0, err)
		if errors.Is(err, tfidf.ErrEmptyCorpus) {
			return nil, &domain.NoCorpusError{Reason: "corpus is empty", Err: err}
		}
		return nil, err
	}

	snap := &CorpusSnapshot{
		Version:   corpusVersion(docs),
		Documents: docs,
		Model:     model,
		BuiltAt:   ci.now(),

		generation: generation,
	}
	metrics.RecordCorpusRebuild(len(docs), nil)
	ci.logger.WithFields(logrus.Fields{
		"documents":  len(docs),
		"vocabulary": model.Dimension(),
		"version":    snap.Version,
	}).Info("Corpus index built")
	return snap, nil
}

// corpusVersion fingerprints the ranked content of the corpus
func corpusVersion(docs []domain.DiseaseDocument) string {
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(d.Name))
		h.Write([]byte{0})
		h.Write([]byte(d.Text()))
		h.Write([]byte{0})
		h.Write([]byte(d.HealthTip))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
