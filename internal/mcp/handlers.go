package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/pkg/geo"
)

// toolFunc handles the raw JSON arguments of one tool call
type toolFunc func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// DiagnoseSymptomsParams defines parameters for diagnose_symptoms
type DiagnoseSymptomsParams struct {
	Symptoms  []string `json:"symptoms"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
}

// CheckOutbreakParams defines parameters for check_outbreak
type CheckOutbreakParams struct {
	Disease      string   `json:"disease,omitempty"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters float64  `json:"radius_meters,omitempty"`
}

// RedZoneParams defines parameters for red_zone_alert
type RedZoneParams struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// RadialClustersParams defines parameters for radial_clusters
type RadialClustersParams struct {
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Disease         string   `json:"disease,omitempty"`
	RadiusMeters    float64  `json:"radius_meters,omitempty"`
	BandWidthMeters float64  `json:"band_width_meters,omitempty"`
}

func (s *ToolServer) handler(name string, fn toolFunc) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		return s.invoke(ctx, name, fn, args)
	}
}

// invoke runs fn and turns domain errors into tool error results. Only
// transport-level failures are returned as Go errors.
func (s *ToolServer) invoke(ctx context.Context, name string, fn toolFunc, args json.RawMessage) (*mcp.CallToolResult, error) {
	start := time.Now()
	entry := s.logger.WithField("tool", name)
	entry.Info("Tool invoked")

	result, err := fn(ctx, args)
	if err != nil {
		entry.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).Warn("Tool call failed")
		return s.errorResult(err), nil
	}

	entry.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Tool call completed")
	return result, nil
}

func (s *ToolServer) diagnoseSymptoms(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params DiagnoseSymptomsParams
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}

	var location *geo.Point
	if params.Latitude != nil || params.Longitude != nil {
		p, err := point(params.Latitude, params.Longitude)
		if err != nil {
			return nil, err
		}
		location = &p
	}

	result, err := s.services.Diagnosis.Diagnose(ctx, domain.DiagnosisQuery{
		Symptoms: params.Symptoms,
		Location: location,
		UserID:   params.UserID,
	})
	if err != nil {
		return nil, err
	}

	summary := "No matching disease found"
	if len(result.Candidates) > 0 {
		top := result.Candidates[0]
		summary = fmt.Sprintf("Most likely: %s (confidence %.3f), %d candidate(s)", top.Disease, top.Confidence, len(result.Candidates))
	}
	return jsonResult(summary, result)
}

func (s *ToolServer) checkOutbreak(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params CheckOutbreakParams
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	center, err := point(params.Latitude, params.Longitude)
	if err != nil {
		return nil, err
	}

	signal, err := s.services.Outbreaks.Detect(ctx, params.Disease, params.RadiusMeters, center)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("No outbreak: %d recent vs %d historical report(s)", signal.CurrentCount, signal.HistoricalCount)
	if signal.Triggered {
		summary = fmt.Sprintf("Outbreak detected: %d recent vs %d historical report(s)", signal.CurrentCount, signal.HistoricalCount)
	}
	return jsonResult(summary, signal)
}

func (s *ToolServer) redZoneAlert(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params RedZoneParams
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	center, err := point(params.Latitude, params.Longitude)
	if err != nil {
		return nil, err
	}

	alert, err := s.services.Outbreaks.RedZone(ctx, center)
	if err != nil {
		return nil, err
	}

	summary := "No red zone alert"
	if alert.Triggered {
		summary = "Red zone alert triggered!"
	}
	return jsonResult(summary, alert)
}

func (s *ToolServer) radialClusters(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var params RadialClustersParams
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	center, err := point(params.Latitude, params.Longitude)
	if err != nil {
		return nil, err
	}

	clusters, err := s.services.Clusters.RadialClusters(ctx, center, params.Disease, params.RadiusMeters, params.BandWidthMeters)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range clusters {
		total += c.Count
	}
	return jsonResult(fmt.Sprintf("%d report(s) in %d band(s)", total, len(clusters)), clusters)
}

// errorResult creates a tool error result. Internal details stay in the log.
func (s *ToolServer) errorResult(err error) *mcp.CallToolResult {
	var (
		invalid  *domain.InvalidInputError
		noCorpus *domain.NoCorpusError
		store    *domain.StoreUnavailableError
	)

	text := "Error: internal error"
	switch {
	case errors.As(err, &invalid):
		text = fmt.Sprintf("Error: invalid %s: %s", invalid.Field, invalid.Message)
	case errors.As(err, &noCorpus):
		text = "Error: diagnosis is temporarily unavailable (no disease corpus)"
	case errors.As(err, &store):
		text = "Error: report store temporarily unavailable"
	case domain.IsCanceled(err):
		text = "Error: request timed out"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// jsonResult returns a one-line summary followed by the JSON payload
func jsonResult(summary string, payload interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

func decodeArgs(args json.RawMessage, dst interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return domain.NewInvalidInputError("arguments", "arguments must be a JSON object matching the tool schema", nil)
	}
	return nil
}

func point(lat, lng *float64) (geo.Point, error) {
	if lat == nil {
		return geo.Point{}, domain.NewInvalidInputError("latitude", "latitude is required", nil)
	}
	if lng == nil {
		return geo.Point{}, domain.NewInvalidInputError("longitude", "longitude is required", nil)
	}
	return geo.Point{Latitude: *lat, Longitude: *lng}, nil
}
