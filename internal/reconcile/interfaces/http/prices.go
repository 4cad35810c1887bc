package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"energy-ledger/internal/audit"
	"energy-ledger/internal/auth"
	"energy-ledger/internal/reconcile/application"
)

// PriceHandler records and lists price snapshots.
type PriceHandler struct {
	service  *application.Service
	recorder audit.Logger
	logger   *zap.Logger
}

// NewPriceHandler constructs a price handler.
func NewPriceHandler(service *application.Service, recorder audit.Logger, logger *zap.Logger) (*PriceHandler, error) {
	if service == nil {
		return nil, errors.New("price handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceHandler{service: service, recorder: recorder, logger: logger}, nil
}

type priceRequest struct {
	DeviceID string   `json:"deviceId"`
	TS       int64    `json:"ts"`
	Price    *float64 `json:"price"`
}

// ServeHTTP handles /api/v1/prices.
func (h *PriceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleRecord(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *PriceHandler) handleList(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceFromQuery(r)
	if err != nil {
		respondError(w, err)
		return
	}
	history, err := h.service.PriceHistory(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("prices: load history", zap.String("device_id", deviceID), zap.Error(err))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": deviceID, "snapshots": history})
}

func (h *PriceHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" || req.Price == nil {
		http.Error(w, "deviceId and price are required", http.StatusBadRequest)
		return
	}
	if err := auth.EnsureDeviceAccess(r.Context(), req.DeviceID); err != nil {
		respondError(w, err)
		return
	}
	ts, err := parseTimestamp(req.TS)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.RecordPrice(r.Context(), req.DeviceID, ts, *req.Price)
	if err != nil {
		h.logger.Error("prices: record", zap.String("device_id", req.DeviceID), zap.Error(err))
		respondError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Validation.IsValid {
		status = http.StatusUnprocessableEntity
	}
	if res.Recorded {
		recordAudit(r, h.recorder, h.logger, audit.FromRequest(r, audit.ActionPriceRecorded, req.DeviceID, req))
	}
	writeJSON(w, status, res)
}
