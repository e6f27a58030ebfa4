package mcp

import (
	"context"
	"encoding/json"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// StateURI names the resource holding the ledger snapshot.
const StateURI = "supplies://state"

func (s *Server) registerResources() {
	s.mcp.AddResource(mcpgo.NewResource(
		StateURI,
		"Supplies State",
		mcpgo.WithResourceDescription("Current records, the edit in progress and the loading flag"),
		mcpgo.WithMIMEType("application/json"),
	), s.handleState)
}

func (s *Server) handleState(ctx context.Context, req mcpgo.ReadResourceRequest) ([]mcpgo.ResourceContents, error) {
	snap, err := s.ledger.Snapshot()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcpgo.ResourceContents{
		mcpgo.TextResourceContents{
			URI:      StateURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
