package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "retailcli/internal/errors"
	mw "retailcli/internal/middleware"
	api "retailcli/pkg/contracts/api/v1"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// DashboardHandler serves the dashboard JSON API.
type DashboardHandler struct {
	service      DashboardServiceInterface
	validator    *mw.Validator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDashboardHandler creates a new dashboard handler with RFC 7807 error handling
func NewDashboardHandler(service DashboardServiceInterface, validator *mw.Validator, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DashboardHandler {
	return &DashboardHandler{
		service:      service,
		validator:    validator,
		logger:       logger.With(slog.String("component", "dashboard_handler")),
		errorHandler: errorHandler,
	}
}

// Routes mounts the dashboard endpoints.
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/dashboard", h.GetDashboard)
	r.Get("/summaries/{name}", h.GetSummary)
	r.Get("/filters", h.GetFilters)
	r.Get("/sample", h.GetSample)
	r.Post("/source/check", h.CheckSource)
	r.Post("/cache/invalidate", h.InvalidateCache)
	return r
}

// dashboardQuery decodes and validates the filter parameters.
func (h *DashboardHandler) dashboardQuery(w http.ResponseWriter, r *http.Request) (api.DashboardQuery, bool) {
	q := mw.DecodeDashboardQuery(r.URL.Query())
	if err := h.validator.ValidateStruct(q); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return q, false
	}
	return q, true
}

// GetDashboard handles GET /api/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q, ok := h.dashboardQuery(w, r)
	if !ok {
		return
	}

	view, err := h.service.Dashboard(r.Context(), q)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

// GetSummary handles GET /api/summaries/{name}
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q, ok := h.dashboardQuery(w, r)
	if !ok {
		return
	}

	table, err := h.service.Summary(r.Context(), name, q)
	if err != nil {
		if apierrors.IsType(err, apierrors.ErrTypeNotFound) {
			h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				apierrors.ErrSummaryNotFound.StatusCode,
				apierrors.ErrSummaryNotFound.ErrorCode,
				apierrors.ErrSummaryNotFound.Message,
				map[string]string{"name": name},
			))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, table)
}

// GetFilters handles GET /api/filters
func (h *DashboardHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	q, ok := h.dashboardQuery(w, r)
	if !ok {
		return
	}

	opts, err := h.service.Filters(r.Context(), q)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, opts)
}

// GetSample handles GET /api/sample
func (h *DashboardHandler) GetSample(w http.ResponseWriter, r *http.Request) {
	q := mw.DecodeSampleQuery(r.URL.Query())
	if err := h.validator.ValidateStruct(q); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	sample, err := h.service.Sample(r.Context(), q)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, sample)
}

// CheckSource handles POST /api/source/check
func (h *DashboardHandler) CheckSource(w http.ResponseWriter, r *http.Request) {
	var req api.SourceCheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.CheckSource(r.Context(), req.URL)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "source checked",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("url", result.URL),
		slog.Bool("reachable", result.Reachable))
	render.JSON(w, r, result)
}

// InvalidateCache handles POST /api/cache/invalidate
func (h *DashboardHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req api.CacheInvalidateRequest
	if !h.decode(w, r, &req) {
		return
	}
	render.JSON(w, r, api.CacheInvalidateResponse{Removed: h.service.InvalidateCache(r.Context(), req.URL)})
}

// decode reads an optional JSON body into dst and validates it. An empty body
// leaves dst at its zero value.
func (h *DashboardHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decodeJSON(w, r, dst, h.validator, h.errorHandler)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, v *mw.Validator, eh *apierrors.ErrorHandler) bool {
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil && err != io.EOF {
			eh.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return false
		}
	}
	if err := v.ValidateStruct(dst); err != nil {
		eh.HandleError(w, r, err)
		return false
	}
	return true
}
