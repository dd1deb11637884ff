package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maltedev/catalog-crawler/internal/catalog"
	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/repair"
	"github.com/maltedev/catalog-crawler/internal/worklist"
)

const (
	maxBodyBytes = 1 << 20
	// MaxRequestAttempts bounds max_attempts accepted from clients.
	MaxRequestAttempts = 10
)

// WorklistSource lists worklist items. worklist.Tracker implements it.
type WorklistSource interface {
	List(ctx context.Context) ([]worklist.Item, error)
}

// OutboxStats reports relay backlog. *database.Relay implements it.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	repairCfg repair.Config
	engine    *repair.Engine
	worklist  WorklistSource
	outbox    OutboxStats
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandlers builds the handlers. worklist and outbox may be nil; the
// worklist endpoint then answers 503 and health omits the outbox section.
func NewHandlers(repairCfg repair.Config, worklist WorklistSource, outbox OutboxStats, m *metrics.Metrics, logger *slog.Logger) (*Handlers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if repairCfg.Logger == nil {
		repairCfg.Logger = logger
	}
	engine, err := repair.New(repairCfg)
	if err != nil {
		return nil, err
	}

	return &Handlers{
		repairCfg: repairCfg,
		engine:    engine,
		worklist:  worklist,
		outbox:    outbox,
		metrics:   m,
		logger:    logger.With("component", "api"),
	}, nil
}

type RepairRequest struct {
	Raw         string `json:"raw"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

type RepairResponse struct {
	Value    map[string]any     `json:"value"`
	Attempts int                `json:"attempts"`
	Fixes    []repair.ErrorKind `json:"fixes,omitempty"`
}

type RepairErrorResponse struct {
	Error          string `json:"error"`
	Kind           string `json:"kind"`
	Attempts       int    `json:"attempts"`
	Candidate      string `json:"candidate,omitempty"`
	DiagnosticPath string `json:"diagnostic_path,omitempty"`
}

type NormalizeResponse struct {
	Handle   string         `json:"handle"`
	Record   catalog.Record `json:"record"`
	Attempts int            `json:"attempts"`
}

type WorklistResponse struct {
	Items []worklist.Item `json:"items"`
	Total int             `json:"total"`
	Done  int             `json:"done"`
}

// Repair runs the repair engine over a raw model answer.
func (h *Handlers) Repair(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRepairRequest(w, r)
	if !ok {
		return
	}

	res, err := h.repair(req)
	if err != nil {
		h.respondRepairError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, RepairResponse{
		Value:    res.Value,
		Attempts: res.Attempts,
		Fixes:    res.Fixes,
	})
}

// Normalize repairs the raw answer and maps it onto the catalog schema.
func (h *Handlers) Normalize(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRepairRequest(w, r)
	if !ok {
		return
	}

	res, err := h.repair(req)
	if err != nil {
		h.respondRepairError(w, err)
		return
	}

	rec, err := catalog.Normalize(res.Value)
	if err != nil {
		h.respondJSON(w, http.StatusUnprocessableEntity, RepairErrorResponse{
			Error:    err.Error(),
			Kind:     "normalize",
			Attempts: res.Attempts,
		})
		return
	}

	h.respondJSON(w, http.StatusOK, NormalizeResponse{
		Handle:   rec.Handle(),
		Record:   rec,
		Attempts: res.Attempts,
	})
}

func (h *Handlers) ListWorklist(w http.ResponseWriter, r *http.Request) {
	if h.worklist == nil {
		h.respondError(w, http.StatusServiceUnavailable, "worklist not configured")
		return
	}

	items, err := h.worklist.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list worklist", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list worklist")
		return
	}

	resp := WorklistResponse{Items: items, Total: len(items)}
	if resp.Items == nil {
		resp.Items = []worklist.Item{}
	}
	for _, item := range items {
		if item.Done {
			resp.Done++
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Health reports ok, or the outbox backlog state when a relay is attached.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pendingCount, pendingErr := h.outbox.GetPendingCount(r.Context())
		deadLetterCount, deadErr := h.outbox.GetDeadLetterCount(r.Context())
		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		switch {
		case pendingErr != nil || deadErr != nil:
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		case deadLetterCount > 100:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case pendingCount > 1000:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) decodeRepairRequest(w http.ResponseWriter, r *http.Request) (RepairRequest, bool) {
	var req RepairRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.MaxAttempts < 0 || req.MaxAttempts > MaxRequestAttempts {
		h.respondError(w, http.StatusBadRequest, "max_attempts must be between 1 and 10")
		return req, false
	}
	return req, true
}

func (h *Handlers) repair(req RepairRequest) (*repair.Result, error) {
	engine := h.engine
	if req.MaxAttempts > 0 && req.MaxAttempts != engine.MaxAttempts() {
		cfg := h.repairCfg
		cfg.MaxAttempts = req.MaxAttempts
		var err error
		if engine, err = repair.New(cfg); err != nil {
			return nil, err
		}
	}

	res, err := engine.RepairDetailed(req.Raw)
	attempts := 0
	if res != nil {
		attempts = res.Attempts
	}
	var uerr *repair.UnparseableError
	if errors.As(err, &uerr) {
		attempts = uerr.Attempts
	}
	h.metrics.ObserveRepair(attempts, err)
	return res, err
}

func (h *Handlers) respondRepairError(w http.ResponseWriter, err error) {
	resp := RepairErrorResponse{Error: err.Error()}

	var uerr *repair.UnparseableError
	var perr *repair.ParseError
	switch {
	case errors.Is(err, repair.ErrEmptyInput):
		resp.Kind = "empty_input"
	case errors.Is(err, repair.ErrNoJSONObject):
		resp.Kind = "no_object"
	case errors.As(err, &uerr):
		resp.Attempts = uerr.Attempts
		resp.Candidate = uerr.Candidate
		resp.DiagnosticPath = uerr.DiagnosticPath
		resp.Kind = string(repair.KindOther)
		if errors.As(err, &perr) {
			resp.Kind = string(perr.Kind)
		}
	default:
		h.logger.Error("repair failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "repair failed")
		return
	}

	h.respondJSON(w, http.StatusUnprocessableEntity, resp)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
