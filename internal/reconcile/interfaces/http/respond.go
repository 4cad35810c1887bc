package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"energy-ledger/internal/audit"
	"energy-ledger/internal/auth"
	"energy-ledger/internal/reconcile/application"
	"energy-ledger/internal/statistics/domain"
)

const timeLayout = time.RFC3339

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps application errors onto status codes.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrDeviceForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, application.ErrEmptyDeviceID),
		errors.Is(err, application.ErrInvalidSample),
		errors.Is(err, statistics.ErrInvalidPeriod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// recordAudit logs an operator action. Audit failures do not fail the request.
func recordAudit(r *http.Request, recorder audit.Logger, logger *zap.Logger, entry audit.Entry) {
	if recorder == nil {
		return
	}
	if err := recorder.Log(r.Context(), entry); err != nil {
		logger.Warn("audit log failed", zap.String("action", entry.Action), zap.String("device_id", entry.DeviceID), zap.Error(err))
	}
}

// deviceFromQuery reads device_id and checks it against the token scope.
func deviceFromQuery(r *http.Request) (string, error) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		return "", application.ErrEmptyDeviceID
	}
	if err := auth.EnsureDeviceAccess(r.Context(), deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}

// parseTimeQuery accepts RFC3339 or unix seconds.
func parseTimeQuery(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, nil
	}
	if sec, err := strconv.ParseInt(value, 10, 64); err == nil {
		ts, err := parseTimestamp(sec)
		if err != nil {
			return time.Time{}, errors.New(key + " must be a positive unix time")
		}
		return time.Unix(ts, 0).UTC(), nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339 or unix seconds")
	}
	return parsed.UTC(), nil
}

// parseTimestamp accepts milliseconds or seconds and returns seconds.
func parseTimestamp(value int64) (int64, error) {
	if value <= 0 {
		return 0, errors.New("invalid ts")
	}
	if value > 1_000_000_000_000 {
		return value / 1000, nil
	}
	return value, nil
}
