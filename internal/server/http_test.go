package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/rules"
	"github.com/zot/supplies/internal/storage"
	"github.com/zot/supplies/internal/supply"
)

func newLedger(t *testing.T, validators ...controller.Validator) (*controller.Service, *storage.MemoryStorage) {
	t.Helper()
	backend := storage.NewMemoryStorage()
	slot := storage.NewSlot(backend, storage.DefaultKey, nil)
	svc := controller.NewService(controller.New(slot), validators...)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Load())
	return svc, backend
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// TestHTTPRecordLifecycle drives every route through the endpoint
func TestHTTPRecordLifecycle(t *testing.T) {
	svc, backend := newLedger(t)
	h := NewHTTPEndpoint(svc, nil, nil)

	w := do(t, h, "GET", "/api/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, h, "POST", "/api/records", `{"date":"2024-01-01T00:00:00Z","teaQuantity":2,"samosaQuantity":1,"snacksQuantity":0}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first supply.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 2, first.Tea)

	w = do(t, h, "POST", "/api/records", `{"date":"2024-01-02T00:00:00Z","teaQuantity":1,"snacksQuantity":3}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var second supply.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	w = do(t, h, "GET", "/api/records", "")
	var records []supply.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID, "newest date first")

	w = do(t, h, "POST", "/api/records/"+first.ID+"/edit", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, "GET", "/api/state", "")
	var snap controller.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.NotNil(t, snap.Editing)
	assert.Equal(t, first.ID, snap.Editing.ID)
	assert.False(t, snap.Loading)

	w = do(t, h, "PUT", "/api/records/"+first.ID, `{"date":"2024-01-01T00:00:00Z","teaQuantity":9}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Editing, "update clears the edit")
	assert.Equal(t, 9, snap.Records[1].Tea)

	w = do(t, h, "DELETE", "/api/records/"+second.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, "DELETE", "/api/records/missing", "")
	assert.Equal(t, http.StatusNoContent, w.Code, "deleting an absent id is not an error")

	records, err = svc.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first.ID, records[0].ID)

	blob, err := backend.Get(storage.DefaultKey)
	require.NoError(t, err)
	assert.Contains(t, string(blob), first.ID)
	assert.NotContains(t, string(blob), second.ID)
}

// TestHTTPCancelEdit verifies DELETE /api/edit
func TestHTTPCancelEdit(t *testing.T) {
	svc, _ := newLedger(t)
	h := NewHTTPEndpoint(svc, nil, nil)

	rec, err := svc.Add(supply.Fields{Date: mustDate(t, "2024-03-01")})
	require.NoError(t, err)
	_, err = svc.BeginEdit(rec.ID)
	require.NoError(t, err)

	w := do(t, h, "DELETE", "/api/edit", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Editing)
}

// TestHTTPAcceptsShortDates verifies bare dates are read as UTC midnight
func TestHTTPAcceptsShortDates(t *testing.T) {
	svc, _ := newLedger(t)
	h := NewHTTPEndpoint(svc, nil, nil)

	w := do(t, h, "POST", "/api/records", `{"date":"2024-01-31","teaQuantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec supply.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.Date.Equal(mustDate(t, "2024-01-31")))

	w = do(t, h, "PUT", "/api/records/"+rec.ID, `{"date":"2024-02-01 08:15","teaQuantity":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	records, err := svc.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Tea)
	assert.True(t, records[0].Date.Equal(time.Date(2024, 2, 1, 8, 15, 0, 0, time.UTC)))
}

// TestHTTPErrors verifies status codes for bad input
func TestHTTPErrors(t *testing.T) {
	script, err := rules.LoadString("test", `
function validate(record)
  if record.snacksQuantity > 10 then return "too many snacks" end
  return true
end`)
	require.NoError(t, err)
	t.Cleanup(script.Close)

	svc, _ := newLedger(t, script)
	h := NewHTTPEndpoint(svc, nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", "POST", "/api/records", `{`, http.StatusBadRequest},
		{"negative quantity", "POST", "/api/records", `{"date":"2024-01-01T00:00:00Z","teaQuantity":-1}`, http.StatusBadRequest},
		{"missing date", "POST", "/api/records", `{"teaQuantity":1}`, http.StatusBadRequest},
		{"unparseable date", "POST", "/api/records", `{"date":"someday"}`, http.StatusBadRequest},
		{"rule rejection", "POST", "/api/records", `{"date":"2024-01-01T00:00:00Z","snacksQuantity":11}`, http.StatusBadRequest},
		{"update unknown", "PUT", "/api/records/nope", `{"date":"2024-01-01T00:00:00Z"}`, http.StatusNotFound},
		{"edit unknown", "POST", "/api/records/nope/edit", "", http.StatusNotFound},
		{"wrong method", "PATCH", "/api/records", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want != http.StatusMethodNotAllowed {
				var body errorBody
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.NotEmpty(t, body.Error)
			}
		})
	}

	records, err := svc.Records()
	require.NoError(t, err)
	assert.Empty(t, records, "rejected requests must not add records")
}
