// Package cli provides the command-line interface for the supplies ledger.
// This file re-exports internal packages for wrapper projects.
package cli

import (
	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/mcp"
	"github.com/zot/supplies/internal/server"
	"github.com/zot/supplies/internal/supply"
)

// Re-export ledger types
type (
	Record   = supply.Record
	Fields   = supply.Fields
	Snapshot = controller.Snapshot
	Service  = controller.Service
	Server   = server.Server
)

// Re-export constructors
var (
	NewServer    = server.New
	NewMCPServer = mcp.NewServer
)
