package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/atelier/production-backend/internal/production/service"
	"github.com/atelier/production-backend/pkg/httputil"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// ReportHandler handles aggregation, dashboard and export endpoints
type ReportHandler struct {
	service  *service.ReportingService
	renderer service.PickingListRenderer
	logger   *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.ReportingService, renderer service.PickingListRenderer, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service:  svc,
		renderer: renderer,
		logger:   log,
	}
}

// Aggregate returns the view named in the path over the filtered units
func (h *ReportHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	filter, err := unitFilterFromQuery(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	view, err := h.service.Aggregate(r.Context(), chi.URLParam(r, "view"), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, view)
}

// GetStats returns dashboard statistics
func (h *ReportHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// PickingList serves the PDF of units waiting to ship
func (h *ReportHandler) PickingList(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.RenderPickingList(r.Context(), h.renderer, &buf); err != nil {
		h.logger.Error().Err(err).Msg("failed to generate picking list PDF")
		httputil.Error(w, err)
		return
	}

	filename := fmt.Sprintf("picking-list-%s.pdf", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
	w.Write(buf.Bytes())
}

// HealthCheck reports the state of one dependency
type HealthCheck func(ctx context.Context) map[string]string

// Health returns a handler reporting every dependency. Any status other
// than up or disabled turns the response into a 503.
func Health(serviceName string, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		report := map[string]interface{}{"service": serviceName}
		code := http.StatusOK
		for name, check := range checks {
			result := check(ctx)
			report[name] = result
			if s := result["status"]; s != "up" && s != "disabled" {
				code = http.StatusServiceUnavailable
			}
		}

		report["status"] = "up"
		if code != http.StatusOK {
			report["status"] = "degraded"
		}
		httputil.JSON(w, code, report)
	}
}
