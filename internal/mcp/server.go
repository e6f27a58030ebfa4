// Package mcp exposes the supplies ledger to AI agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"io"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/supply"
)

// Ledger is the record service the tools operate on.
type Ledger interface {
	Add(supply.Fields) (supply.Record, error)
	Update(supply.Record) error
	Patch(id string, fn func(*supply.Fields) error) (supply.Record, error)
	Delete(id string) error
	BeginEdit(id string) (supply.Record, error)
	CancelEdit() error
	Snapshot() (controller.Snapshot, error)
	Records() ([]supply.Record, error)
}

// Server implements an MCP server for AI integration.
type Server struct {
	mcp    *mcpserver.MCPServer
	ledger Ledger
	log    *zap.Logger
}

// NewServer creates an MCP server with the record tools and the state
// resource registered.
func NewServer(ledger Ledger, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		mcp: mcpserver.NewMCPServer(
			"supplies",
			version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
		ledger: ledger,
		log:    log.Named("mcp"),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// ServeStdio processes MCP messages from in until it is exhausted or ctx
// is cancelled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.log.Info("serving on stdio")
	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log))
	return stdio.Listen(ctx, in, out)
}
