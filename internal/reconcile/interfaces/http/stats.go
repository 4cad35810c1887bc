package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"energy-ledger/internal/audit"
	"energy-ledger/internal/reconcile/application"
)

const defaultAuditLookback = 24 * time.Hour

// StatsHandler serves /api/v1/stats/{daily,breakdown,summary,audit,cleanup}.
type StatsHandler struct {
	service  *application.Service
	recorder audit.Logger
	logger   *zap.Logger
	now      func() time.Time
}

// NewStatsHandler constructs a stats handler.
func NewStatsHandler(service *application.Service, recorder audit.Logger, logger *zap.Logger) (*StatsHandler, error) {
	if service == nil {
		return nil, errors.New("stats handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{service: service, recorder: recorder, logger: logger, now: time.Now}, nil
}

// ServeHTTP dispatches on the last path segment.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	view := strings.TrimPrefix(r.URL.Path, "/api/v1/stats/")
	if view == "cleanup" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
	} else if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	deviceID, err := deviceFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var body any
	switch view {
	case "daily":
		body, err = h.service.DailyStats(r.Context(), deviceID)
	case "breakdown":
		body, err = h.service.Breakdown(r.Context(), deviceID)
	case "summary":
		body, err = h.service.Summary(r.Context(), deviceID)
	case "audit":
		body, err = h.audit(r, deviceID)
	case "cleanup":
		body, err = h.cleanup(r, deviceID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		var qe queryError
		if errors.As(err, &qe) {
			http.Error(w, qe.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("stats query failed", zap.String("view", view), zap.String("device_id", deviceID), zap.Error(err))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type queryError struct{ error }

func (h *StatsHandler) audit(r *http.Request, deviceID string) (any, error) {
	now := h.now().UTC()
	to, err := parseTimeQuery(r, "to", now)
	if err != nil {
		return nil, queryError{err}
	}
	from, err := parseTimeQuery(r, "from", to.Add(-defaultAuditLookback))
	if err != nil {
		return nil, queryError{err}
	}
	return h.service.AuditTrail(r.Context(), deviceID, from, to)
}

func (h *StatsHandler) cleanup(r *http.Request, deviceID string) (any, error) {
	report, err := h.service.Cleanup(r.Context(), deviceID)
	if err != nil {
		return nil, err
	}
	if report.Removed() > 0 {
		recordAudit(r, h.recorder, h.logger, audit.FromRequest(r, audit.ActionEntriesCleanup, deviceID, report))
	}
	return report, nil
}

// CalculatorAuditHandler serves the calculator audit ring buffer.
type CalculatorAuditHandler struct {
	service *application.Service
}

// NewCalculatorAuditHandler constructs the handler.
func NewCalculatorAuditHandler(service *application.Service) (*CalculatorAuditHandler, error) {
	if service == nil {
		return nil, errors.New("calculator audit handler: nil service")
	}
	return &CalculatorAuditHandler{service: service}, nil
}

// ServeHTTP handles GET /api/v1/calculator/audit.
func (h *CalculatorAuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.service.CalculatorAudit())
}
