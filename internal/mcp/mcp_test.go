package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/supply"
)

type nopStore struct{}

func (nopStore) Load() ([]supply.Record, bool) { return nil, false }
func (nopStore) Save([]supply.Record)          {}

func newTestServer(t *testing.T) (*Server, *controller.Service) {
	t.Helper()
	svc := controller.NewService(controller.New(nopStore{}))
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Load())
	return NewServer(svc, "test", nil), svc
}

func call(t *testing.T, handler func(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error), args map[string]any) (*mcpgo.CallToolResult, string) {
	t.Helper()
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return result, text.Text
}

// TestAddAndListRecords verifies added records are listed newest first
func TestAddAndListRecords(t *testing.T) {
	s, _ := newTestServer(t)

	result, text := call(t, s.handleAddRecord, map[string]any{
		"date":           "2024-01-01",
		"teaQuantity":    float64(2),
		"samosaQuantity": float64(1),
	})
	require.False(t, result.IsError, text)
	var added supply.Record
	require.NoError(t, json.Unmarshal([]byte(text), &added))
	assert.Equal(t, 2, added.Tea)
	assert.Equal(t, 1, added.Samosa)

	call(t, s.handleAddRecord, map[string]any{"date": "2024-01-02", "snacksQuantity": float64(3)})

	_, text = call(t, s.handleListRecords, nil)
	var records []supply.Record
	require.NoError(t, json.Unmarshal([]byte(text), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Snacks, "newest date first")
	assert.Equal(t, added.ID, records[1].ID)
}

// TestAddRecordRejectsBadInput verifies bad arguments become tool errors
func TestAddRecordRejectsBadInput(t *testing.T) {
	s, svc := newTestServer(t)

	for name, args := range map[string]map[string]any{
		"missing date":      {"teaQuantity": float64(1)},
		"unparseable date":  {"date": "yesterday"},
		"negative quantity": {"date": "2024-01-01", "teaQuantity": float64(-1)},
	} {
		t.Run(name, func(t *testing.T) {
			result, _ := call(t, s.handleAddRecord, args)
			assert.True(t, result.IsError)
		})
	}

	records, err := svc.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestUpdateRecordKeepsOmittedFields verifies partial updates merge into the stored record
func TestUpdateRecordKeepsOmittedFields(t *testing.T) {
	s, svc := newTestServer(t)

	rec, err := svc.Add(supply.Fields{Date: mustDate(t, "2024-01-01"), Tea: 2, Samosa: 1})
	require.NoError(t, err)

	result, text := call(t, s.handleUpdateRecord, map[string]any{"id": rec.ID, "snacksQuantity": float64(5)})
	require.False(t, result.IsError, text)

	got, ok := find(t, svc, rec.ID)
	require.True(t, ok)
	assert.Equal(t, 2, got.Tea)
	assert.Equal(t, 1, got.Samosa)
	assert.Equal(t, 5, got.Snacks)
	assert.True(t, got.Date.Equal(rec.Date))

	result, _ = call(t, s.handleUpdateRecord, map[string]any{"id": "missing"})
	assert.True(t, result.IsError)
}

// TestEditAndDelete verifies the edit and delete tools
func TestEditAndDelete(t *testing.T) {
	s, svc := newTestServer(t)

	rec, err := svc.Add(supply.Fields{Date: mustDate(t, "2024-01-01")})
	require.NoError(t, err)

	result, _ := call(t, s.handleBeginEdit, map[string]any{"id": rec.ID})
	require.False(t, result.IsError)
	snap, err := svc.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Editing)

	result, _ = call(t, s.handleBeginEdit, map[string]any{"id": "missing"})
	assert.True(t, result.IsError)

	call(t, s.handleCancelEdit, nil)
	snap, err = svc.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Editing)

	call(t, s.handleDeleteRecord, map[string]any{"id": rec.ID})
	records, err := svc.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestStateResource verifies the state resource returns a snapshot
func TestStateResource(t *testing.T) {
	s, svc := newTestServer(t)

	_, err := svc.Add(supply.Fields{Date: mustDate(t, "2024-01-01"), Tea: 1})
	require.NoError(t, err)

	contents, err := s.handleState(context.Background(), mcpgo.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcpgo.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, StateURI, text.URI)

	var snap controller.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Len(t, snap.Records, 1)
	assert.False(t, snap.Loading)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	date, err := supply.ParseDate(s)
	require.NoError(t, err)
	return date
}

func find(t *testing.T, svc *controller.Service, id string) (supply.Record, bool) {
	t.Helper()
	records, err := svc.Records()
	require.NoError(t, err)
	if i := supply.Index(records, id); i >= 0 {
		return records[i], true
	}
	return supply.Record{}, false
}
