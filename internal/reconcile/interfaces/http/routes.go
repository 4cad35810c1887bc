package http

import (
	"net/http"

	"go.uber.org/zap"

	"energy-ledger/internal/audit"
	"energy-ledger/internal/reconcile/application"
)

// Register mounts the ingest, price, statistics, export and stream routes.
// recorder may be nil.
func Register(mux *http.ServeMux, service *application.Service, hub *Hub, recorder audit.Logger, logger *zap.Logger) error {
	ingest, err := NewIngestHandler(service, logger)
	if err != nil {
		return err
	}
	prices, err := NewPriceHandler(service, recorder, logger)
	if err != nil {
		return err
	}
	stats, err := NewStatsHandler(service, recorder, logger)
	if err != nil {
		return err
	}
	calcAudit, err := NewCalculatorAuditHandler(service)
	if err != nil {
		return err
	}
	exports, err := NewExportHandler(service, logger)
	if err != nil {
		return err
	}
	stream, err := NewStreamHandler(hub)
	if err != nil {
		return err
	}

	mux.Handle("/ingest/samples", ingest)
	mux.Handle("/api/v1/prices", prices)
	mux.Handle("/api/v1/stats/", stats)
	mux.Handle("/api/v1/calculator/audit", calcAudit)
	mux.Handle("/api/v1/exports/", exports)
	mux.Handle("/api/v1/flushes/stream", stream)
	return nil
}
