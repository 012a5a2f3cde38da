// Package mcp exposes the diagnosis, outbreak and cluster operations as MCP
// tools for agent clients.
package mcp

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/service"
)

// Tool names
const (
	ToolDiagnoseSymptoms = "diagnose_symptoms"
	ToolCheckOutbreak    = "check_outbreak"
	ToolRedZoneAlert     = "red_zone_alert"
	ToolRadialClusters   = "radial_clusters"
)

// ToolServer serves the MedMap services over the MCP protocol
type ToolServer struct {
	services  *service.Services
	mcpServer *mcp.Server
	tools     []string
	logger    *logrus.Logger
}

// NewToolServer creates an MCP server with all tools registered
func NewToolServer(services *service.Services, version string, logger *logrus.Logger) *ToolServer {
	if version == "" {
		version = "v0.1.0"
	}

	s := &ToolServer{
		services: services,
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    "medmap-diagnosis-server",
			Version: version,
		}, nil),
		logger: logger,
	}
	s.registerTools()
	return s
}

// Tools lists the registered tool names in registration order
func (s *ToolServer) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves tool calls on transport until ctx is cancelled or the client
// disconnects
func (s *ToolServer) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.WithField("tools", len(s.tools)).Info("Starting MCP tool server")
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// RunStdio serves tool calls on stdin/stdout
func (s *ToolServer) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

func (s *ToolServer) registerTools() {
	latitude := &jsonschema.Schema{Type: "number", Description: "Latitude in decimal degrees (-90..90)"}
	longitude := &jsonschema.Schema{Type: "number", Description: "Longitude in decimal degrees (-180..180)"}
	radius := &jsonschema.Schema{Type: "number", Description: "Search radius in meters; server default when omitted"}

	s.addTool(&mcp.Tool{
		Name:        ToolDiagnoseSymptoms,
		Description: "Rank reference diseases by TF-IDF similarity to a list of symptoms. The query is recorded as a diagnosis report.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"symptoms": {
					Type:        "array",
					Description: "Symptom phrases, e.g. [\"fever\", \"dry cough\"]",
					Items:       &jsonschema.Schema{Type: "string"},
				},
				"latitude":  latitude,
				"longitude": longitude,
				"user_id":   {Type: "string", Description: "Opaque reporter identifier"},
			},
			Required: []string{"symptoms"},
		},
	}, s.diagnoseSymptoms)

	s.addTool(&mcp.Tool{
		Name:        ToolCheckOutbreak,
		Description: "Compare recent and historical report counts for a disease around a point and flag an outbreak.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"disease":       {Type: "string", Description: "Disease name; empty matches every disease"},
				"latitude":      latitude,
				"longitude":     longitude,
				"radius_meters": radius,
			},
			Required: []string{"latitude", "longitude"},
		},
	}, s.checkOutbreak)

	s.addTool(&mcp.Tool{
		Name:        ToolRedZoneAlert,
		Description: "Check whether high-severity submitted reports near a point form a red zone.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"latitude":  latitude,
				"longitude": longitude,
			},
			Required: []string{"latitude", "longitude"},
		},
	}, s.redZoneAlert)

	s.addTool(&mcp.Tool{
		Name:        ToolRadialClusters,
		Description: "Group reports near a point into distance bands.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"latitude":          latitude,
				"longitude":         longitude,
				"disease":           {Type: "string", Description: "Restrict to one disease"},
				"radius_meters":     radius,
				"band_width_meters": {Type: "number", Description: "Width of each distance band in meters"},
			},
			Required: []string{"latitude", "longitude"},
		},
	}, s.radialClusters)

	s.logger.WithField("tool_count", len(s.tools)).Info("Registered MCP tools")
}

func (s *ToolServer) addTool(tool *mcp.Tool, fn toolFunc) {
	s.mcpServer.AddTool(tool, s.handler(tool.Name, fn))
	s.tools = append(s.tools, tool.Name)
	s.logger.WithField("tool_name", tool.Name).Debug("Registered MCP tool")
}
