package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/metrics"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// OutbreakDetector compares the report count of the current window against
// everything older, within a radius of a point
type OutbreakDetector struct {
	reports domain.ReportStore
	cfg     domain.OutbreakConfig
	logger  *logrus.Logger
	now     func() time.Time
}

// NewOutbreakDetector creates a detector
func NewOutbreakDetector(reports domain.ReportStore, cfg domain.OutbreakConfig, logger *logrus.Logger) *OutbreakDetector {
	return &OutbreakDetector{reports: reports, cfg: cfg, logger: logger, now: time.Now}
}

// Triggered reports whether current exceeds multiplier times historical.
// Any current report triggers when there is no history.
func Triggered(current, historical int, multiplier float64) bool {
	return float64(current) > multiplier*float64(historical)
}

// Detect evaluates an outbreak of disease around center. An empty disease
// counts every report; a zero radius uses the configured default.
func (d *OutbreakDetector) Detect(ctx context.Context, disease string, radiusMeters float64, center geo.Point) (*domain.OutbreakSignal, error) {
	radius, err := d.radius(radiusMeters, d.cfg.DefaultRadius, center)
	if err != nil {
		return nil, err
	}
	disease = strings.TrimSpace(disease)

	current, historical, err := d.counts(ctx, domain.ReportQuery{Disease: disease}, center, radius)
	if err != nil {
		return nil, err
	}

	signal := &domain.OutbreakSignal{
		Disease:         disease,
		Center:          center,
		RadiusMeters:    radius,
		CurrentCount:    current,
		HistoricalCount: historical,
		Multiplier:      d.cfg.Multiplier,
		Triggered:       Triggered(current, historical, d.cfg.Multiplier),
	}
	metrics.RecordOutbreakCheck("outbreak", signal.Triggered)
	if signal.Triggered {
		d.logger.WithFields(logrus.Fields{
			"disease":    disease,
			"latitude":   center.Latitude,
			"longitude":  center.Longitude,
			"current":    current,
			"historical": historical,
		}).Warn("Outbreak detected")
	}
	return signal, nil
}

// RedZone runs the outbreak comparison over high-severity reports of any
// disease within the red-zone radius
func (d *OutbreakDetector) RedZone(ctx context.Context, center geo.Point) (*domain.RedZoneAlert, error) {
	radius, err := d.radius(0, d.cfg.RedZoneRadius, center)
	if err != nil {
		return nil, err
	}

	current, historical, err := d.counts(ctx, domain.ReportQuery{Severity: domain.SeverityHigh}, center, radius)
	if err != nil {
		return nil, err
	}

	alert := &domain.RedZoneAlert{
		Center:          center,
		RadiusMeters:    radius,
		CurrentCount:    current,
		HistoricalCount: historical,
		Triggered:       Triggered(current, historical, d.cfg.Multiplier),
	}
	metrics.RecordOutbreakCheck("red_zone", alert.Triggered)
	return alert, nil
}

func (d *OutbreakDetector) radius(requested, fallback float64, center geo.Point) (float64, error) {
	if err := center.Validate(); err != nil {
		return 0, domain.NewInvalidInputError("location", err.Error(), center)
	}
	if requested < 0 {
		return 0, domain.NewInvalidInputError("radius", "must be positive", requested)
	}
	if requested == 0 {
		return fallback, nil
	}
	return requested, nil
}

// counts returns the reports within radius in [now-window, now] and before
// now-window
func (d *OutbreakDetector) counts(ctx context.Context, base domain.ReportQuery, center geo.Point, radius float64) (int, int, error) {
	now := d.now().UTC()
	windowStart := now.Add(-d.cfg.Window)

	currentQuery := base
	currentQuery.Since = windowStart
	currentQuery.Until = now
	current, err := nearbyReports(ctx, d.reports, currentQuery, center, radius)
	if err != nil {
		return 0, 0, err
	}

	historicalQuery := base
	historicalQuery.Before = windowStart
	historical, err := nearbyReports(ctx, d.reports, historicalQuery, center, radius)
	if err != nil {
		return 0, 0, err
	}

	return len(current), len(historical), nil
}
