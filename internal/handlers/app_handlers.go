package handlers

import (
	"context"
	"net/http"
	"time"

	"readiculous/internal/handlers/dto"
	"readiculous/internal/logger"
	"readiculous/internal/middleware"
	"readiculous/internal/models/record"
	"readiculous/internal/notify"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const serviceName = "readiculous"

type Handler struct {
	Tasks       RecordHandler
	Assessments RecordHandler
	Service     Service
	Dashboard   Dashboard
	Permissions Permissions
	Tester      TestNotifier
}

func NewHandler(svc Service, dashboard Dashboard, permissions Permissions, tester TestNotifier) *Handler {
	return &Handler{
		Tasks:       NewRecordHandler(svc, record.KindTask),
		Assessments: NewRecordHandler(svc, record.KindAssessment),
		Service:     svc,
		Dashboard:   dashboard,
		Permissions: permissions,
		Tester:      tester,
	}
}

func (h *Handler) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	h.Tasks.Location = loc
	h.Assessments.Location = loc
}

// Routes вешает все маршруты на роутер
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/dashboard", h.GetDashboard)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.Tasks.List)    // GET /tasks
		r.Post("/", h.Tasks.Create) // POST /tasks

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Tasks.Get)           // GET /tasks/{id}
			r.Put("/", h.Tasks.Update)        // PUT /tasks/{id}
			r.Delete("/", h.Tasks.Delete)     // DELETE /tasks/{id}?confirm=true
			r.Post("/toggle", h.Tasks.Toggle) // POST /tasks/{id}/toggle
		})
	})

	r.Route("/assessments", func(r chi.Router) {
		r.Get("/", h.Assessments.List)
		r.Post("/", h.Assessments.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Assessments.Get)
			r.Put("/", h.Assessments.Update)
			r.Delete("/", h.Assessments.Delete)
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/permission", h.GetPermission)
		r.Put("/permission", h.SetPermission)
		r.Post("/test", h.TestNotification)
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Service.HealthCheck(ctx); err != nil {
		logger.Error("HTTP: Сервис недоступен", err)
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unavailable"),
			toPayload("service", serviceName),
			toPayload("error", err.Error()),
		)
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("status", "ok"),
		toPayload("service", serviceName),
		toPayload("time", time.Now().UTC()),
	)
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	snapshot, err := h.Dashboard.Current(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, "dashboard", err)
		return
	}

	logger.Info("HTTP_OUT: Главный экран собран",
		zap.Int("due_today", snapshot.DueTodayCount),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromSnapshot(snapshot))
}

func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")
	responseWithJSON(w, http.StatusOK, toPayload("permission", h.Permissions.Permission()))
}

func (h *Handler) SetPermission(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.PermissionRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if err := h.Permissions.SetPermission(request.Permission); err != nil {
		logger.Warn("HTTP: Неверное значение разрешения",
			zap.String("permission", string(request.Permission)),
			zap.Error(err))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Разрешение на уведомления изменено", zap.String("permission", string(request.Permission)))
	responseWithJSON(w, http.StatusOK, toPayload("permission", h.Permissions.Permission()))
}

// TestNotification ставит пробное уведомление. Отказ в разрешении - не ошибка запроса.
func (h *Handler) TestNotification(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	out := h.Tester.ScheduleTest(r.Context())
	status := http.StatusAccepted
	if out.State == notify.StateFailed {
		status = http.StatusBadGateway
	}

	logger.Info("HTTP_OUT: Пробное уведомление",
		zap.String("state", string(out.State)),
		zap.Int("http_status", status))
	responseWithBody(w, status, dto.FromOutcome(out))
}
