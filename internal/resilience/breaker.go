package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/metrics"
)

// NewBreaker builds a circuit breaker for a named store. Not-found lookups and
// caller cancellations do not count as store failures.
func NewBreaker(name string, cfg domain.BreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	minRequests := cfg.MinRequests
	failureRatio := cfg.FailureRatio
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logger.WithFields(logrus.Fields{
				"store": name,
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("Store circuit breaker changed state")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
		},
	})
}

// execute runs fn through cb and maps breaker and store failures to
// StoreUnavailableError.
func execute(cb *gobreaker.CircuitBreaker, op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.Execute(fn)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &domain.StoreUnavailableError{Op: op, Err: fmt.Errorf("%s: %w", cb.Name(), err)}
	}
	return nil, domain.AsStoreUnavailable(op, err)
}

// ReportStore guards a domain.ReportStore with a circuit breaker
type ReportStore struct {
	next domain.ReportStore
	cb   *gobreaker.CircuitBreaker
}

// NewReportStore wraps next
func NewReportStore(next domain.ReportStore, cfg domain.BreakerConfig, logger *logrus.Logger) *ReportStore {
	return &ReportStore{next: next, cb: NewBreaker("reports", cfg, logger)}
}

func (s *ReportStore) CreateReport(ctx context.Context, report *domain.Report) error {
	_, err := execute(s.cb, "create report", func() (interface{}, error) {
		return nil, s.next.CreateReport(ctx, report)
	})
	return err
}

func (s *ReportStore) QueryReports(ctx context.Context, query domain.ReportQuery) ([]domain.Report, error) {
	result, err := execute(s.cb, "query reports", func() (interface{}, error) {
		return s.next.QueryReports(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Report), nil
}

// Ping bypasses the breaker so health checks report the real store state.
func (s *ReportStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// State returns the current breaker state
func (s *ReportStore) State() gobreaker.State {
	return s.cb.State()
}

// CorpusStore guards a domain.CorpusStore with a circuit breaker
type CorpusStore struct {
	next domain.CorpusStore
	cb   *gobreaker.CircuitBreaker
}

// NewCorpusStore wraps next
func NewCorpusStore(next domain.CorpusStore, cfg domain.BreakerConfig, logger *logrus.Logger) *CorpusStore {
	return &CorpusStore{next: next, cb: NewBreaker("corpus", cfg, logger)}
}

func (s *CorpusStore) ListDiseases(ctx context.Context) ([]domain.DiseaseDocument, error) {
	result, err := execute(s.cb, "list diseases", func() (interface{}, error) {
		return s.next.ListDiseases(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.DiseaseDocument), nil
}

func (s *CorpusStore) GetDisease(ctx context.Context, name string) (*domain.DiseaseDocument, error) {
	result, err := execute(s.cb, "get disease", func() (interface{}, error) {
		return s.next.GetDisease(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.DiseaseDocument), nil
}

func (s *CorpusStore) UpsertDiseases(ctx context.Context, docs []domain.DiseaseDocument) (int, error) {
	result, err := execute(s.cb, "upsert diseases", func() (interface{}, error) {
		return s.next.UpsertDiseases(ctx, docs)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// State returns the current breaker state
func (s *CorpusStore) State() gobreaker.State {
	return s.cb.State()
}
