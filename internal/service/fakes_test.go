package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// memStore is an in-memory corpus and report store
type memStore struct {
	mu        sync.Mutex
	diseases  []domain.DiseaseDocument
	reports   []domain.Report
	listCalls int
	listErr   error
}

func newMemStore(docs ...domain.DiseaseDocument) *memStore {
	return &memStore{diseases: docs}
}

func (m *memStore) ListDiseases(ctx context.Context) ([]domain.DiseaseDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.DiseaseDocument, len(m.diseases))
	copy(out, m.diseases)
	return out, nil
}

func (m *memStore) GetDisease(ctx context.Context, name string) (*domain.DiseaseDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.diseases {
		if d.Name == name {
			doc := d
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) UpsertDiseases(ctx context.Context, docs []domain.DiseaseDocument) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		replaced := false
		for i := range m.diseases {
			if m.diseases[i].Name == d.Name {
				m.diseases[i] = d
				replaced = true
			}
		}
		if !replaced {
			m.diseases = append(m.diseases, d)
		}
	}
	return len(docs), nil
}

func (m *memStore) CreateReport(ctx context.Context, report *domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *report)
	return nil
}

func (m *memStore) QueryReports(ctx context.Context, q domain.ReportQuery) ([]domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Report
	for _, r := range m.reports {
		if q.Disease != "" && r.Disease != q.Disease {
			continue
		}
		if q.Severity != "" && r.Severity != q.Severity {
			continue
		}
		if q.Source != "" && r.Source != q.Source {
			continue
		}
		if (q.RequireLocation || q.Box != nil) && r.Location == nil {
			continue
		}
		if q.Box != nil && !q.Box.Contains(*r.Location) {
			continue
		}
		if !q.Since.IsZero() && r.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && r.CreatedAt.After(q.Until) {
			continue
		}
		if !q.Before.IsZero() && !r.CreatedAt.Before(q.Before) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.NewestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) reportCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

// MockReportStore is a testify mock of domain.ReportStore
type MockReportStore struct {
	mock.Mock
}

func (m *MockReportStore) CreateReport(ctx context.Context, report *domain.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportStore) QueryReports(ctx context.Context, query domain.ReportQuery) ([]domain.Report, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Report), args.Error(1)
}

func (m *MockReportStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// countingCache is a map-backed ranking cache that counts hits
type countingCache struct {
	mu    sync.Mutex
	data  map[string][]domain.ScoredCandidate
	hits  int
	posts int
}

func newCountingCache() *countingCache {
	return &countingCache{data: map[string][]domain.ScoredCandidate{}}
}

func (c *countingCache) Get(_ context.Context, key string) ([]domain.ScoredCandidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *countingCache) Set(_ context.Context, key string, candidates []domain.ScoredCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts++
	c.data[key] = candidates
}

func testLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func fluCold() []domain.DiseaseDocument {
	return []domain.DiseaseDocument{
		{Name: "Flu", SymptomText: "fever cough fatigue", HealthTip: "Rest and drink fluids"},
		{Name: "Cold", SymptomText: "cough sneeze", HealthTip: "Keep warm"},
	}
}

// northOf returns the point meters due north of p
func northOf(p geo.Point, meters float64) geo.Point {
	return geo.Point{
		Latitude:  p.Latitude + meters/geo.EarthRadiusMeters*180/math.Pi,
		Longitude: p.Longitude,
	}
}

func at(p geo.Point) *geo.Point {
	return &p
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
