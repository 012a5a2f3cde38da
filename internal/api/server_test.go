package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/service"
	"github.com/medmap-diagnosis-server/internal/sqlstore"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

func testConfig() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			RequestTimeout: 5 * time.Second,
			CORSOrigins:    []string{"*"},
		},
		Logging:   domain.LoggingConfig{Level: "info"},
		Diagnosis: domain.DefaultDiagnosisConfig(),
		Outbreak:  domain.DefaultOutbreakConfig(),
		Clusters:  domain.DefaultClusterConfig(),
	}
}

type testEnv struct {
	server *Server
	store  *sqlstore.Store
	hook   *test.Hook
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()

	store, err := sqlstore.Open(filepath.Join(t.TempDir(), "medmap.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.UpsertDiseases(context.Background(), []domain.DiseaseDocument{
		{Name: "Flu", SymptomText: "fever cough fatigue", HealthTip: "Rest"},
		{Name: "Cold", SymptomText: "cough sneeze", HealthTip: "Keep warm"},
	})
	require.NoError(t, err)

	cfg := testConfig()
	services := service.Build(cfg, store, store, nil, logger)
	return &testEnv{server: NewServer(cfg, services, logger), store: store, hook: hook}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var body domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestDiagnoseEndpoint(t *testing.T) {
	env := setupTestServer(t)

	for _, path := range []string{"/diagnose", "/api/diagnose"} {
		t.Run(path, func(t *testing.T) {
			w := env.do(t, http.MethodPost, path, DiagnoseRequest{
				Symptoms: []string{"fever", "cough"},
				Location: &geo.Point{Latitude: 27.7, Longitude: 85.3},
			})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var result struct {
				QuerySymptoms    []string `json:"query_symptoms"`
				PossibleDiseases []struct {
					Disease    string  `json:"disease"`
					Confidence float64 `json:"confidence"`
					HealthTip  string  `json:"health_tip_en"`
				} `json:"possible_diseases"`
				ReportID string `json:"report_id"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
			assert.Equal(t, []string{"fever", "cough"}, result.QuerySymptoms)
			require.Len(t, result.PossibleDiseases, 2)
			assert.Equal(t, "Flu", result.PossibleDiseases[0].Disease)
			assert.Equal(t, "Rest", result.PossibleDiseases[0].HealthTip)
			assert.NotEmpty(t, result.ReportID)
		})
	}

	reports, err := env.store.QueryReports(context.Background(), domain.ReportQuery{})
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestDiagnoseEndpoint_NoMatch(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/diagnose", map[string]interface{}{"symptoms": []string{"xyz123nonsense"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"possible_diseases":[]`)
}

func TestDiagnoseEndpoint_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty symptoms", body: `{"symptoms": []}`},
		{name: "missing symptoms", body: `{}`},
		{name: "symptoms not an array", body: `{"symptoms": "fever"}`},
		{name: "malformed json", body: `{"symptoms": [`},
		{name: "bad location", body: `{"symptoms": ["fever"], "location": {"latitude": 95, "longitude": 0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)

			w := env.do(t, http.MethodPost, "/diagnose", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeAPIError(t, w)
			assert.Equal(t, domain.CodeInvalidInput, body.Code)
			assert.Equal(t, w.Header().Get("X-Correlation-ID"), body.RequestID)

			reports, err := env.store.QueryReports(context.Background(), domain.ReportQuery{})
			require.NoError(t, err)
			assert.Empty(t, reports, "no report may be written for a rejected request")
		})
	}
}

func TestClusterEndpoints(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	point := &geo.Point{Latitude: 10, Longitude: 20}
	for _, id := range []string{"a", "b"} {
		require.NoError(t, env.store.CreateReport(ctx, &domain.Report{
			ID: id, Disease: "Malaria", Location: point, Source: domain.SourceDiagnosis, CreatedAt: time.Now().UTC(),
		}))
	}

	t.Run("admin exact clusters", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/admin/clusters?disease=Malaria", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var clusters []struct {
			ID struct {
				Lat     float64 `json:"lat"`
				Lng     float64 `json:"lng"`
				Disease string  `json:"disease"`
			} `json:"_id"`
			Count   int              `json:"count"`
			Reports []map[string]any `json:"reports"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clusters))
		require.Len(t, clusters, 1)
		assert.Equal(t, 2, clusters[0].Count)
		assert.Equal(t, 10.0, clusters[0].ID.Lat)
		assert.Equal(t, 20.0, clusters[0].ID.Lng)
		assert.Len(t, clusters[0].Reports, 2)
	})

	t.Run("radial clusters", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/clusters?latitude=10&longitude=20&disease=Malaria", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[{"_id":0,"count":2,"reports":["a","b"],"avgLocation":[20,10]}]`, w.Body.String())
	})

	t.Run("radial clusters need coordinates", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/clusters?latitude=10", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "longitude", decodeAPIError(t, w).Details)
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/clusters?latitude=-10&longitude=-20", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", w.Body.String())
	})

	t.Run("trends", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/admin/trends", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var trends []domain.TrendBucket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trends))
		require.Len(t, trends, 1)
		assert.Equal(t, "Malaria", trends[0].Key.Disease)
		assert.Equal(t, 2, trends[0].Count)
	})
}

func TestOutbreakEndpoints(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	point := &geo.Point{Latitude: 27.7, Longitude: 85.3}

	w := env.do(t, http.MethodGet, "/api/outbreak?disease=Dengue&latitude=27.7&longitude=85.3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outbreakDetected":false`)

	w = env.do(t, http.MethodGet, "/alert?latitude=27.7&longitude=85.3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var alert AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alert))
	assert.Equal(t, RedZoneClearMessage, alert.Message)

	w = env.do(t, http.MethodPost, "/api/report", service.SubmitReportParams{
		Disease: "Dengue", Location: point, Severity: "high",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Report submitted successfully")

	w = env.do(t, http.MethodGet, "/api/outbreak?disease=Dengue&latitude=27.7&longitude=85.3&radius=5000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var signal OutbreakResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signal))
	assert.True(t, signal.OutbreakDetected)
	assert.Equal(t, 1, signal.CurrentCount)
	assert.Equal(t, 5000.0, signal.RadiusMeters)

	w = env.do(t, http.MethodGet, "/alert?latitude=27.7&longitude=85.3", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alert))
	assert.Equal(t, RedZoneTriggeredMessage, alert.Message)
	assert.True(t, alert.Triggered)

	reports, err := env.store.QueryReports(ctx, domain.ReportQuery{Source: domain.SourceSubmitted})
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	w = env.do(t, http.MethodGet, "/api/outbreak?disease=Dengue&latitude=abc&longitude=85.3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/outbreak?latitude=1&longitude=1&radius=NaN", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportEndpoints(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/api/report", `{"disease":"Flu","location":{"latitude":1,"longitude":1},"severity":"extreme"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "severity", decodeAPIError(t, w).Details)

	for _, sev := range []string{"low", "medium"} {
		w = env.do(t, http.MethodPost, "/api/report", service.SubmitReportParams{
			Disease: "Flu", Location: &geo.Point{Latitude: 1, Longitude: 1}, Severity: sev,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/reports?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reports []domain.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, domain.SeverityMedium, reports[0].Severity)

	w = env.do(t, http.MethodGet, "/api/reports?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiseaseEndpoints(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/api/diseases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var docs []domain.DiseaseDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &docs))
	assert.Len(t, docs, 2)

	w = env.do(t, http.MethodGet, "/api/diseases/Flu", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"disease":"Flu"`)

	w = env.do(t, http.MethodGet, "/api/diseases/Plague", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeNotFound, decodeAPIError(t, w).Code)

	w = env.do(t, http.MethodPost, "/admin/diseases", []domain.DiseaseDocument{
		{Name: "Measles", SymptomText: "rash fever spots", HealthTip: "Isolate"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"upserted":1}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/diagnose", DiagnoseRequest{Symptoms: []string{"rash"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"disease":"Measles"`, "upserted diseases are ranked immediately")

	w = env.do(t, http.MethodPost, "/admin/diseases", `{"disease":"not-an-array"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type brokenReports struct{}

func (brokenReports) CreateReport(context.Context, *domain.Report) error {
	return errors.New("connection refused")
}

func (brokenReports) QueryReports(context.Context, domain.ReportQuery) ([]domain.Report, error) {
	return nil, &domain.StoreUnavailableError{Op: "query reports", Err: errors.New("connection refused")}
}

func (brokenReports) Ping(context.Context) error { return errors.New("connection refused") }

type emptyCorpus struct{}

func (emptyCorpus) ListDiseases(context.Context) ([]domain.DiseaseDocument, error) { return nil, nil }

func (emptyCorpus) GetDisease(context.Context, string) (*domain.DiseaseDocument, error) {
	return nil, domain.ErrNotFound
}

func (emptyCorpus) UpsertDiseases(_ context.Context, docs []domain.DiseaseDocument) (int, error) {
	return len(docs), nil
}

func TestErrorMapping(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cfg := testConfig()
	env := &testEnv{
		server: NewServer(cfg, service.Build(cfg, emptyCorpus{}, brokenReports{}, nil, logger), logger),
		hook:   hook,
	}

	w := env.do(t, http.MethodPost, "/diagnose", DiagnoseRequest{Symptoms: []string{"fever"}})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeAPIError(t, w)
	assert.Equal(t, domain.CodeNoCorpus, body.Code)
	assert.NotContains(t, w.Body.String(), "corpus is empty", "internal detail must not leak")

	w = env.do(t, http.MethodGet, "/api/outbreak?disease=Flu&latitude=1&longitude=1", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, domain.CodeStoreUnavailable, decodeAPIError(t, w).Code)
	assert.NotContains(t, w.Body.String(), "connection refused")

	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var sawCorpusAlert bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "Diagnosis unavailable: no disease corpus" {
			sawCorpusAlert = true
		}
	}
	assert.True(t, sawCorpusAlert, "missing corpus must be logged at error level")
}
