package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/medmap-diagnosis-server/pkg/geo"
)

// Severity grades a submitted disease report
type Severity string

// Severity levels
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the known severity levels
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ParseSeverity parses a case-insensitive severity level
func ParseSeverity(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", NewInvalidInputError("severity", fmt.Sprintf("must be one of %s, %s, %s", SeverityLow, SeverityMedium, SeverityHigh), value)
	}
	return s, nil
}

// ReportSource identifies how a report entered the report log
type ReportSource string

// Report sources
const (
	SourceDiagnosis ReportSource = "diagnosis"
	SourceSubmitted ReportSource = "submitted"
)

// DiseaseDocument is one entry of the reference corpus. Name is the stable
// identifier.
type DiseaseDocument struct {
	ID          int64     `json:"id,omitempty" yaml:"-"`
	Name        string    `json:"disease" yaml:"disease"`
	SymptomText string    `json:"symptom_text" yaml:"symptom_text"`
	Symptoms    []string  `json:"symptoms,omitempty" yaml:"symptoms,omitempty"`
	HealthTip   string    `json:"health_tip_en,omitempty" yaml:"health_tip_en,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Text returns the text vectorized for the document: the symptom sentence
// when present, otherwise the keyword list joined by spaces.
func (d DiseaseDocument) Text() string {
	if strings.TrimSpace(d.SymptomText) != "" {
		return d.SymptomText
	}
	return strings.Join(d.Symptoms, " ")
}

// DiagnosisQuery is a request to rank diseases against a symptom list
type DiagnosisQuery struct {
	Symptoms []string
	Location *geo.Point
	UserID   string
}

// ScoredCandidate is one ranked disease
type ScoredCandidate struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
	HealthTip  string  `json:"health_tip_en"`
}

// DiagnosisResult is the outcome of a diagnosis call
type DiagnosisResult struct {
	QuerySymptoms []string          `json:"query_symptoms"`
	Candidates    []ScoredCandidate `json:"possible_diseases"`
	ReportID      string            `json:"report_id,omitempty"`
	Persisted     bool              `json:"-"`
	CorpusVersion string            `json:"-"`
}

// Report is an entry of the append-only report log. Disease is empty when a
// diagnosis produced no candidate above the threshold.
type Report struct {
	ID              string       `json:"_id"`
	UserID          string       `json:"userId,omitempty"`
	Disease         string       `json:"disease"`
	SymptomsText    string       `json:"symptoms,omitempty"`
	SimilarityScore float64      `json:"similarityScore"`
	Location        *geo.Point   `json:"location,omitempty"`
	Severity        Severity     `json:"severity,omitempty"`
	Source          ReportSource `json:"source"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// ReportQuery filters the report log. Zero values leave a criterion unset.
type ReportQuery struct {
	Disease  string
	Severity Severity
	Source   ReportSource
	// Box restricts results to reports with a location inside it.
	Box *geo.Box
	// RequireLocation drops reports without coordinates.
	RequireLocation bool
	// Since and Until bound created_at inclusively; Before bounds it
	// exclusively.
	Since  time.Time
	Until  time.Time
	Before time.Time
	// NewestFirst orders by created_at descending instead of ascending.
	NewestFirst bool
	Limit       int
	Offset      int
}

// ClusterKey groups reports sharing exact coordinates and disease
type ClusterKey struct {
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
	Disease   string   `json:"disease"`
}

// ExactCluster is a group of reports with identical key
type ExactCluster struct {
	Key     ClusterKey `json:"_id"`
	Count   int        `json:"count"`
	Reports []Report   `json:"reports"`
}

// BandCluster groups reports by distance band from a query point.
// AvgLocation is [longitude, latitude].
type BandCluster struct {
	Band        int        `json:"_id"`
	Count       int        `json:"count"`
	Reports     []string   `json:"reports"`
	AvgLocation [2]float64 `json:"avgLocation"`
}

// TrendKey identifies a daily trend bucket
type TrendKey struct {
	Date    string `json:"date"`
	Disease string `json:"disease"`
}

// TrendBucket counts reports per UTC day and disease
type TrendBucket struct {
	Key   TrendKey `json:"_id"`
	Count int      `json:"count"`
}

// OutbreakSignal compares recent and historical report counts in a radius
type OutbreakSignal struct {
	Disease         string    `json:"disease"`
	Center          geo.Point `json:"center"`
	RadiusMeters    float64   `json:"radiusMeters"`
	CurrentCount    int       `json:"currentCount"`
	HistoricalCount int       `json:"historicalCount"`
	Multiplier      float64   `json:"multiplier"`
	Triggered       bool      `json:"outbreakDetected"`
}

// RedZoneAlert is the outbreak comparison over high-severity reports
type RedZoneAlert struct {
	Center          geo.Point `json:"center"`
	RadiusMeters    float64   `json:"radiusMeters"`
	CurrentCount    int       `json:"currentCount"`
	HistoricalCount int       `json:"historicalCount"`
	Triggered       bool      `json:"triggered"`
}
