package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"energy-ledger/internal/auth"
	"energy-ledger/internal/metering/domain"
	"energy-ledger/internal/reconcile/application"
)

const maxIngestBody = 1 << 20

// IngestHandler accepts grid counter samples.
type IngestHandler struct {
	service *application.Service
	logger  *zap.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *application.Service, logger *zap.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

type ingestRequest struct {
	DeviceID  string         `json:"deviceId"`
	TS        int64          `json:"ts"`
	InputRaw  *float64       `json:"inputRaw"`
	OutputRaw *float64       `json:"outputRaw"`
	Divisor   float64        `json:"divisor"`
	Samples   []ingestSample `json:"samples"`
}

type ingestSample struct {
	TS        int64    `json:"ts"`
	InputRaw  *float64 `json:"inputRaw"`
	OutputRaw *float64 `json:"outputRaw"`
	Divisor   float64  `json:"divisor"`
}

type sampleResult struct {
	application.IngestResult
	Error string `json:"error,omitempty"`
}

type ingestResponse struct {
	DeviceID string         `json:"deviceId"`
	Results  []sampleResult `json:"results"`
}

// ServeHTTP handles POST /ingest/samples. Samples of a batch are applied
// in order; a rejected sample does not stop the batch.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		h.logger.Warn("ingest: read body error", zap.Error(err))
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Warn("ingest: decode error", zap.Error(err))
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	if err := auth.EnsureDeviceAccess(r.Context(), req.DeviceID); err != nil {
		respondError(w, err)
		return
	}

	points := req.Samples
	if len(points) == 0 && req.TS != 0 {
		points = []ingestSample{{TS: req.TS, InputRaw: req.InputRaw, OutputRaw: req.OutputRaw, Divisor: req.Divisor}}
	}
	if len(points) == 0 {
		http.Error(w, "no samples", http.StatusBadRequest)
		return
	}

	resp := ingestResponse{DeviceID: req.DeviceID, Results: make([]sampleResult, 0, len(points))}
	for _, point := range points {
		sample, err := point.toSample()
		if err != nil {
			resp.Results = append(resp.Results, sampleResult{
				IngestResult: application.IngestResult{DeviceID: req.DeviceID},
				Error:        err.Error(),
			})
			continue
		}
		res, err := h.service.IngestSample(r.Context(), req.DeviceID, sample)
		if errors.Is(err, application.ErrInvalidSample) {
			resp.Results = append(resp.Results, sampleResult{IngestResult: res, Error: err.Error()})
			continue
		}
		if err != nil {
			h.logger.Error("ingest: sample failed", zap.String("device_id", req.DeviceID), zap.Int64("ts", sample.TimestampSec), zap.Error(err))
			respondError(w, err)
			return
		}
		resp.Results = append(resp.Results, sampleResult{IngestResult: res})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p ingestSample) toSample() (metering.Sample, error) {
	ts, err := parseTimestamp(p.TS)
	if err != nil {
		return metering.Sample{}, err
	}
	if p.InputRaw == nil || p.OutputRaw == nil {
		return metering.Sample{}, errors.New("inputRaw and outputRaw are required")
	}
	return metering.Sample{
		TimestampSec:     ts,
		InputRaw:         *p.InputRaw,
		OutputRaw:        *p.OutputRaw,
		DivisorRawPerKWh: p.Divisor,
	}, nil
}
