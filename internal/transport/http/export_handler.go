package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "retailcli/internal/errors"
	mw "retailcli/internal/middleware"
	"retailcli/internal/operations"
	api "retailcli/pkg/contracts/api/v1"
)

// ExportHandler runs refreshes of the export directory.
type ExportHandler struct {
	service      ExportServiceInterface
	validator    *mw.Validator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewExportHandler creates an export handler.
func NewExportHandler(service ExportServiceInterface, validator *mw.Validator, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ExportHandler {
	return &ExportHandler{
		service:      service,
		validator:    validator,
		logger:       logger.With(slog.String("component", "export_handler")),
		errorHandler: errorHandler,
	}
}

// Routes mounts the export endpoints.
func (h *ExportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Post("/", h.StartExport)
	r.Get("/last", h.LastExport)
	return r
}

// StartExport handles POST /api/exports. The refresh runs within the request.
func (h *ExportHandler) StartExport(w http.ResponseWriter, r *http.Request) {
	var req api.ExportRequest
	if !decodeJSON(w, r, &req, h.validator, h.errorHandler) {
		return
	}

	report, err := h.service.Export(r.Context(), req.URL)
	switch {
	case errors.Is(err, operations.ErrRefreshBusy):
		h.errorHandler.HandleError(w, r, apierrors.ErrRefreshRunning)
		return
	case err != nil && report != nil && !hasAppError(err):
		h.errorHandler.HandleError(w, r, apierrors.ExportError(err, report))
		return
	case err != nil:
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "export finished",
		slog.String("run_id", report.Run.ID),
		slog.Int("files", len(report.Metadata.FilesExported)))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, report)
}

// LastExport handles GET /api/exports/last
func (h *ExportHandler) LastExport(w http.ResponseWriter, r *http.Request) {
	last, ok := h.service.LastRun()
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("refresh run"))
		return
	}
	render.JSON(w, r, last)
}

// hasAppError reports whether err carries a typed pipeline error, which the
// error handler maps to its own status.
func hasAppError(err error) bool {
	var appErr *apierrors.AppError
	return errors.As(err, &appErr)
}
