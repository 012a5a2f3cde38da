package service

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// ClusterService aggregates the report log spatially and over time
type ClusterService struct {
	reports domain.ReportStore
	cfg     domain.ClusterConfig
	logger  *logrus.Logger
}

// NewClusterService creates a cluster service
func NewClusterService(reports domain.ReportStore, cfg domain.ClusterConfig, logger *logrus.Logger) *ClusterService {
	return &ClusterService{reports: reports, cfg: cfg, logger: logger}
}

// ExactClusters groups reports sharing coordinates and disease. An empty
// disease matches every report.
func (s *ClusterService) ExactClusters(ctx context.Context, disease string) ([]domain.ExactCluster, error) {
	reports, err := s.reports.QueryReports(ctx, domain.ReportQuery{Disease: disease})
	if err != nil {
		return nil, domain.AsStoreUnavailable("query reports", err)
	}
	return GroupExact(reports), nil
}

// RadialClusters bands the reports within radiusMeters of center by
// distance. Zero radius or band width fall back to the configured defaults.
func (s *ClusterService) RadialClusters(ctx context.Context, center geo.Point, disease string, radiusMeters, bandWidthMeters float64) ([]domain.BandCluster, error) {
	if err := center.Validate(); err != nil {
		return nil, domain.NewInvalidInputError("location", err.Error(), center)
	}
	if radiusMeters == 0 {
		radiusMeters = s.cfg.DefaultRadius
	}
	if bandWidthMeters == 0 {
		bandWidthMeters = s.cfg.BandWidth
	}
	if radiusMeters < 0 {
		return nil, domain.NewInvalidInputError("radius", "must be positive", radiusMeters)
	}
	if bandWidthMeters < 0 {
		return nil, domain.NewInvalidInputError("band_width", "must be positive", bandWidthMeters)
	}

	nearby, err := nearbyReports(ctx, s.reports, domain.ReportQuery{Disease: disease}, center, radiusMeters)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"disease": disease,
		"radius":  radiusMeters,
		"matches": len(nearby),
	}).Debug("Computed radial clusters")

	return GroupBands(nearby, bandWidthMeters), nil
}

// Trends counts reports per UTC day and disease
func (s *ClusterService) Trends(ctx context.Context, disease string) ([]domain.TrendBucket, error) {
	reports, err := s.reports.QueryReports(ctx, domain.ReportQuery{Disease: disease})
	if err != nil {
		return nil, domain.AsStoreUnavailable("query reports", err)
	}
	return GroupTrends(reports), nil
}

// DistancedReport is a report with its distance from a query point
type DistancedReport struct {
	Report   domain.Report
	Distance float64
}

// nearbyReports prefilters with a bounding box in the store and keeps the
// reports whose great-circle distance is within radius
func nearbyReports(ctx context.Context, store domain.ReportStore, query domain.ReportQuery, center geo.Point, radius float64) ([]DistancedReport, error) {
	box := geo.BoundingBox(center, radius)
	query.Box = &box
	query.RequireLocation = true

	reports, err := store.QueryReports(ctx, query)
	if err != nil {
		return nil, domain.AsStoreUnavailable("query reports", err)
	}

	out := make([]DistancedReport, 0, len(reports))
	for _, r := range reports {
		if r.Location == nil {
			continue
		}
		d := geo.Distance(center, *r.Location)
		if d <= radius {
			out = append(out, DistancedReport{Report: r, Distance: d})
		}
	}
	return out, nil
}

// GroupExact groups reports by (latitude, longitude, disease), largest
// group first. Reports without coordinates share a key with nil location.
func GroupExact(reports []domain.Report) []domain.ExactCluster {
	type key struct {
		hasLocation bool
		lat, lng    float64
		disease     string
	}

	index := make(map[key]int)
	var clusters []domain.ExactCluster
	for _, r := range reports {
		k := key{disease: r.Disease}
		if r.Location != nil {
			k.hasLocation = true
			k.lat, k.lng = r.Location.Latitude, r.Location.Longitude
		}

		i, ok := index[k]
		if !ok {
			ck := domain.ClusterKey{Disease: r.Disease}
			if k.hasLocation {
				lat, lng := k.lat, k.lng
				ck.Latitude, ck.Longitude = &lat, &lng
			}
			i = len(clusters)
			index[k] = i
			clusters = append(clusters, domain.ExactCluster{Key: ck})
		}
		clusters[i].Count++
		clusters[i].Reports = append(clusters[i].Reports, r)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return keyLess(clusters[i].Key, clusters[j].Key)
	})
	if clusters == nil {
		return []domain.ExactCluster{}
	}
	return clusters
}

// keyLess orders nil locations first, then latitude, longitude and disease
func keyLess(a, b domain.ClusterKey) bool {
	if (a.Latitude == nil) != (b.Latitude == nil) {
		return a.Latitude == nil
	}
	if a.Latitude != nil {
		if *a.Latitude != *b.Latitude {
			return *a.Latitude < *b.Latitude
		}
		if *a.Longitude != *b.Longitude {
			return *a.Longitude < *b.Longitude
		}
	}
	return a.Disease < b.Disease
}

// GroupBands buckets reports into bands of bandWidth meters, nearest band
// first, with the mean member location of each band
func GroupBands(reports []DistancedReport, bandWidth float64) []domain.BandCluster {
	members := make(map[int][]DistancedReport)
	for _, r := range reports {
		b := geo.Band(r.Distance, bandWidth)
		members[b] = append(members[b], r)
	}

	bands := make([]int, 0, len(members))
	for b := range members {
		bands = append(bands, b)
	}
	sort.Ints(bands)

	clusters := make([]domain.BandCluster, 0, len(bands))
	for _, b := range bands {
		group := members[b]
		ids := make([]string, len(group))
		points := make([]geo.Point, len(group))
		for i, r := range group {
			ids[i] = r.Report.ID
			points[i] = *r.Report.Location
		}
		centroid := geo.Centroid(points)
		clusters = append(clusters, domain.BandCluster{
			Band:        b,
			Count:       len(group),
			Reports:     ids,
			AvgLocation: [2]float64{centroid.Longitude, centroid.Latitude},
		})
	}
	return clusters
}

// GroupTrends counts reports per UTC calendar day and disease, oldest day
// first
func GroupTrends(reports []domain.Report) []domain.TrendBucket {
	counts := make(map[domain.TrendKey]int)
	for _, r := range reports {
		k := domain.TrendKey{Date: r.CreatedAt.UTC().Format("2006-01-02"), Disease: r.Disease}
		counts[k]++
	}

	buckets := make([]domain.TrendBucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, domain.TrendBucket{Key: k, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Key.Date != buckets[j].Key.Date {
			return buckets[i].Key.Date < buckets[j].Key.Date
		}
		return buckets[i].Key.Disease < buckets[j].Key.Disease
	})
	return buckets
}
