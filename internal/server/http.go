package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zot/supplies/internal/controller"
	"github.com/zot/supplies/internal/protocol"
	"github.com/zot/supplies/internal/rules"
	"github.com/zot/supplies/internal/supply"
)

// Ledger is what the HTTP and WebSocket surfaces need from the record
// service.
type Ledger interface {
	protocol.Ledger
	Records() ([]supply.Record, error)
	Subscribe(fn func(controller.Snapshot)) (func(), error)
}

// HTTPEndpoint handles HTTP requests.
type HTTPEndpoint struct {
	ledger     Ledger
	wsEndpoint *WebSocketEndpoint
	mux        *http.ServeMux
	log        *zap.Logger
}

// NewHTTPEndpoint creates a new HTTP endpoint.
func NewHTTPEndpoint(ledger Ledger, wsEndpoint *WebSocketEndpoint, log *zap.Logger) *HTTPEndpoint {
	if log == nil {
		log = zap.NewNop()
	}
	h := &HTTPEndpoint{
		ledger:     ledger,
		wsEndpoint: wsEndpoint,
		mux:        http.NewServeMux(),
		log:        log.Named("http"),
	}
	h.setupRoutes()
	return h
}

func (h *HTTPEndpoint) setupRoutes() {
	h.mux.HandleFunc("GET /api/state", h.handleState)
	h.mux.HandleFunc("GET /api/records", h.handleList)
	h.mux.HandleFunc("POST /api/records", h.handleAdd)
	h.mux.HandleFunc("PUT /api/records/{id}", h.handleUpdate)
	h.mux.HandleFunc("DELETE /api/records/{id}", h.handleDelete)
	h.mux.HandleFunc("POST /api/records/{id}/edit", h.handleBeginEdit)
	h.mux.HandleFunc("DELETE /api/edit", h.handleCancelEdit)
	if h.wsEndpoint != nil {
		h.mux.HandleFunc("GET /ws", h.wsEndpoint.HandleWebSocket)
	}
}

// ServeHTTP implements http.Handler.
func (h *HTTPEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPEndpoint) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ledger.Snapshot()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *HTTPEndpoint) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.Records()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *HTTPEndpoint) handleAdd(w http.ResponseWriter, r *http.Request) {
	var fields supply.Fields
	if !h.readJSON(w, r, &fields) {
		return
	}
	rec, err := h.ledger.Add(fields)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *HTTPEndpoint) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var fields supply.Fields
	if !h.readJSON(w, r, &fields) {
		return
	}
	rec := supply.Record{ID: r.PathValue("id"), Fields: fields}
	if err := h.ledger.Update(rec); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HTTPEndpoint) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Delete(r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPEndpoint) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.BeginEdit(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HTTPEndpoint) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.CancelEdit(); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPEndpoint) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, supply.ErrInvalidRecord), errors.Is(err, rules.ErrRejected):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPEndpoint) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
