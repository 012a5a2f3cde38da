package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/service"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// Red-zone alert messages
const (
	RedZoneTriggeredMessage = "Red zone alert triggered!"
	RedZoneClearMessage     = "No red zone alert"
)

// DiagnoseRequest is the body of POST /diagnose
type DiagnoseRequest struct {
	Symptoms []string   `json:"symptoms"`
	Location *geo.Point `json:"location,omitempty"`
	UserID   string     `json:"userId,omitempty"`
}

// OutbreakResponse is the body of GET /api/outbreak
type OutbreakResponse struct {
	OutbreakDetected bool    `json:"outbreakDetected"`
	Disease          string  `json:"disease,omitempty"`
	CurrentCount     int     `json:"currentCount"`
	HistoricalCount  int     `json:"historicalCount"`
	RadiusMeters     float64 `json:"radiusMeters"`
}

// AlertResponse is the body of GET /alert
type AlertResponse struct {
	Message   string `json:"message"`
	Triggered bool   `json:"triggered"`
}

func (s *Server) handleDiagnose(c *gin.Context) {
	var req DiagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewInvalidInputError("symptoms", "request body must be JSON with a symptoms array", nil))
		return
	}

	result, err := s.services.Diagnosis.Diagnose(c.Request.Context(), domain.DiagnosisQuery{
		Symptoms: req.Symptoms,
		Location: req.Location,
		UserID:   req.UserID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRadialClusters(c *gin.Context) {
	center, err := queryPoint(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	radius, err := queryFloat(c, "radius")
	if err != nil {
		s.writeError(c, err)
		return
	}
	bandWidth, err := queryFloat(c, "band_width")
	if err != nil {
		s.writeError(c, err)
		return
	}

	clusters, err := s.services.Clusters.RadialClusters(c.Request.Context(), center, strings.TrimSpace(c.Query("disease")), radius, bandWidth)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, clusters)
}

func (s *Server) handleExactClusters(c *gin.Context) {
	clusters, err := s.services.Clusters.ExactClusters(c.Request.Context(), strings.TrimSpace(c.Query("disease")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, clusters)
}

func (s *Server) handleTrends(c *gin.Context) {
	trends, err := s.services.Clusters.Trends(c.Request.Context(), strings.TrimSpace(c.Query("disease")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trends)
}

func (s *Server) handleOutbreak(c *gin.Context) {
	center, err := queryPoint(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	radius, err := queryFloat(c, "radius")
	if err != nil {
		s.writeError(c, err)
		return
	}

	signal, err := s.services.Outbreaks.Detect(c.Request.Context(), c.Query("disease"), radius, center)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, OutbreakResponse{
		OutbreakDetected: signal.Triggered,
		Disease:          signal.Disease,
		CurrentCount:     signal.CurrentCount,
		HistoricalCount:  signal.HistoricalCount,
		RadiusMeters:     signal.RadiusMeters,
	})
}

func (s *Server) handleRedZoneAlert(c *gin.Context) {
	center, err := queryPoint(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	alert, err := s.services.Outbreaks.RedZone(c.Request.Context(), center)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := AlertResponse{Message: RedZoneClearMessage, Triggered: alert.Triggered}
	if alert.Triggered {
		resp.Message = RedZoneTriggeredMessage
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSubmitReport(c *gin.Context) {
	var params service.SubmitReportParams
	if err := c.ShouldBindJSON(&params); err != nil {
		s.writeError(c, domain.NewInvalidInputError("body", "request body must be a JSON disease report", nil))
		return
	}

	report, err := s.services.Reports.Submit(c.Request.Context(), params)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Report submitted successfully",
		"report":  report,
	})
}

func (s *Server) handleListReports(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		s.writeError(c, err)
		return
	}

	reports, err := s.services.Reports.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (s *Server) handleListDiseases(c *gin.Context) {
	docs, err := s.services.Corpus.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) handleGetDisease(c *gin.Context) {
	doc, err := s.services.Corpus.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleUpsertDiseases(c *gin.Context) {
	var docs []domain.DiseaseDocument
	if err := c.ShouldBindJSON(&docs); err != nil {
		s.writeError(c, domain.NewInvalidInputError("diseases", "request body must be a JSON array of diseases", nil))
		return
	}

	n, err := s.services.Corpus.Upsert(c.Request.Context(), docs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upserted": n})
}

// queryPoint reads the required latitude and longitude query parameters
func queryPoint(c *gin.Context) (geo.Point, error) {
	var p geo.Point
	for _, field := range []struct {
		name string
		dst  *float64
	}{
		{"latitude", &p.Latitude},
		{"longitude", &p.Longitude},
	} {
		raw := strings.TrimSpace(c.Query(field.name))
		if raw == "" {
			return p, domain.NewInvalidInputError(field.name, field.name+" is required", nil)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, domain.NewInvalidInputError(field.name, "must be a number", raw)
		}
		*field.dst = v
	}
	return p, nil
}

// queryFloat reads an optional numeric query parameter, zero when absent
func queryFloat(c *gin.Context, name string) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.NewInvalidInputError(name, "must be a number", raw)
	}
	return v, nil
}

// queryInt reads an optional integer query parameter, zero when absent
func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewInvalidInputError(name, "must be an integer", raw)
	}
	return v, nil
}
