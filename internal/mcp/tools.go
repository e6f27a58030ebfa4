package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/supply"
)

const dateHelp = "Date of the entry, e.g. 2024-01-31 or 2024-01-31T09:30:00Z"

func quantityOptions() []mcpgo.ToolOption {
	return []mcpgo.ToolOption{
		mcpgo.WithNumber("teaQuantity", mcpgo.Description("Cups of tea"), mcpgo.Min(0)),
		mcpgo.WithNumber("samosaQuantity", mcpgo.Description("Samosas"), mcpgo.Min(0)),
		mcpgo.WithNumber("snacksQuantity", mcpgo.Description("Snack packets"), mcpgo.Min(0)),
	}
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcpgo.NewTool("list_records",
		mcpgo.WithDescription("List every supply record, newest date first"),
	), s.handleListRecords)

	addOpts := append([]mcpgo.ToolOption{
		mcpgo.WithDescription("Record tea, samosa and snack quantities for a date"),
		mcpgo.WithString("date", mcpgo.Required(), mcpgo.Description(dateHelp)),
	}, quantityOptions()...)
	s.mcp.AddTool(mcpgo.NewTool("add_record", addOpts...), s.handleAddRecord)

	updateOpts := append([]mcpgo.ToolOption{
		mcpgo.WithDescription("Change an existing record. Omitted fields keep their current value"),
		mcpgo.WithString("id", mcpgo.Required(), mcpgo.Description("Record id")),
		mcpgo.WithString("date", mcpgo.Description(dateHelp)),
	}, quantityOptions()...)
	s.mcp.AddTool(mcpgo.NewTool("update_record", updateOpts...), s.handleUpdateRecord)

	s.mcp.AddTool(mcpgo.NewTool("delete_record",
		mcpgo.WithDescription("Delete a record. Deleting an unknown id does nothing"),
		mcpgo.WithString("id", mcpgo.Required(), mcpgo.Description("Record id")),
	), s.handleDeleteRecord)

	s.mcp.AddTool(mcpgo.NewTool("begin_edit",
		mcpgo.WithDescription("Mark a record as being edited"),
		mcpgo.WithString("id", mcpgo.Required(), mcpgo.Description("Record id")),
	), s.handleBeginEdit)

	s.mcp.AddTool(mcpgo.NewTool("cancel_edit",
		mcpgo.WithDescription("Abandon the edit in progress"),
	), s.handleCancelEdit)
}

func (s *Server) handleListRecords(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	records, err := s.ledger.Records()
	if err != nil {
		return nil, err
	}
	return jsonResult(records)
}

func (s *Server) handleAddRecord(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	raw, err := req.RequireString("date")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	date, err := supply.ParseDate(raw)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	fields := supply.Fields{
		Date:   date,
		Tea:    req.GetInt("teaQuantity", 0),
		Samosa: req.GetInt("samosaQuantity", 0),
		Snacks: req.GetInt("snacksQuantity", 0),
	}
	rec, err := s.ledger.Add(fields)
	if err != nil {
		return s.toolError("add_record", err)
	}
	return jsonResult(rec)
}

func (s *Server) handleUpdateRecord(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	var date time.Time
	if raw := req.GetString("date", ""); raw != "" {
		if date, err = supply.ParseDate(raw); err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
	}

	rec, err := s.ledger.Patch(id, func(f *supply.Fields) error {
		if !date.IsZero() {
			f.Date = date
		}
		f.Tea = req.GetInt("teaQuantity", f.Tea)
		f.Samosa = req.GetInt("samosaQuantity", f.Samosa)
		f.Snacks = req.GetInt("snacksQuantity", f.Snacks)
		return nil
	})
	if err != nil {
		return s.toolError("update_record", err)
	}
	return jsonResult(rec)
}

func (s *Server) handleDeleteRecord(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if err := s.ledger.Delete(id); err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText("deleted " + id), nil
}

func (s *Server) handleBeginEdit(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	rec, err := s.ledger.BeginEdit(id)
	if err != nil {
		return s.toolError("begin_edit", err)
	}
	return jsonResult(rec)
}

func (s *Server) handleCancelEdit(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if err := s.ledger.CancelEdit(); err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText("edit cancelled"), nil
}

// toolError reports caller mistakes as tool results and anything else as a
// protocol error.
func (s *Server) toolError(tool string, err error) (*mcpgo.CallToolResult, error) {
	if errors.Is(err, controller.ErrClosed) {
		return nil, err
	}
	s.log.Debug("tool rejected input", zap.String("tool", tool), zap.Error(err))
	return mcpgo.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(string(data)), nil
}
