package handlers

import (
	"net/http"
	"strconv"
	"time"

	"readiculous/internal/handlers/dto"
	"readiculous/internal/logger"
	"readiculous/internal/middleware"
	"readiculous/internal/models/record"
	"readiculous/internal/service"
	"readiculous/internal/timeline"

	"go.uber.org/zap"
)

// RecordHandler обслуживает один тип записей: задачи или оценивания
type RecordHandler struct {
	Service Service
	Kind    record.Kind
	// Location - зона, в которой список делится на дни
	Location *time.Location
}

func NewRecordHandler(svc Service, kind record.Kind) RecordHandler {
	return RecordHandler{Service: svc, Kind: kind, Location: time.Local}
}

// List отдаёт записи владельца, сгруппированные по дням, или плоский список при ?flat=true
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	query := r.URL.Query()
	var opts service.ListOptions
	if raw := query.Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			logger.Warn("HTTP: Неверное значение параметра",
				zap.String("querry", "completed"),
				zap.Error(err),
				zap.String("client_ip", r.RemoteAddr))
			responseWithError(w, http.StatusBadRequest, "неверное значение completed")
			return
		}
		opts.Completed = &completed
	}

	owner := middleware.GetUserID(r.Context())
	records, err := h.Service.List(r.Context(), owner, h.Kind, opts)
	if err != nil {
		respondServiceError(w, r, "list_"+string(h.Kind), err)
		return
	}

	logger.Info("HTTP_OUT: Записи получены",
		zap.String("kind", string(h.Kind)),
		zap.Int("count", len(records)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	if flat, _ := strconv.ParseBool(query.Get("flat")); flat {
		responseWithBody(w, http.StatusOK, dto.FromRecordList(records))
		return
	}
	view := timeline.GroupByDay(records, record.DefaultOrder(h.Kind), h.Location)
	responseWithBody(w, http.StatusOK, dto.FromGroupedView(view))
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	found, err := h.Service.Get(r.Context(), middleware.GetUserID(r.Context()), h.Kind, id)
	if err != nil {
		respondServiceError(w, r, "get_"+string(h.Kind), err)
		return
	}

	logger.Info("HTTP_OUT: Запись получена",
		zap.String("record_id", found.ID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromRecord(found))
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.CreateRecordRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	logger.Info("HTTP: Вызов сервиса создания записи", zap.String("kind", string(h.Kind)))
	res, err := h.Service.Create(r.Context(), middleware.GetUserID(r.Context()), request.Draft(h.Kind))
	if err != nil {
		respondServiceError(w, r, "create_"+string(h.Kind), err)
		return
	}

	logger.Info("HTTP_OUT: Запись создана",
		zap.String("record_id", res.Record.ID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithBody(w, http.StatusCreated, dto.FromSubmit(res))
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var request dto.UpdateRecordRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.IsEmpty() {
		logger.Warn("HTTP: Пустое обновление", zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "нет полей для обновления")
		return
	}

	logger.Info("HTTP: запрос к сервису обновления данных")
	res, err := h.Service.Update(r.Context(), middleware.GetUserID(r.Context()), h.Kind, id, request.Apply)
	if err != nil {
		respondServiceError(w, r, "update_"+string(h.Kind), err)
		return
	}

	logger.Info("HTTP_OUT: Запись обновлена",
		zap.String("record_id", id.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromSubmit(res))
}

// Delete требует ?confirm=true, без него отвечает 428
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r)
	if !ok {
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	logger.Info("HTTP: Обращение к сервису для удаления записи")
	if err := h.Service.Delete(r.Context(), middleware.GetUserID(r.Context()), h.Kind, id, confirmed); err != nil {
		respondServiceError(w, r, "delete_"+string(h.Kind), err)
		return
	}

	logger.Info("HTTP_OUT: Запись удалена",
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	updated, err := h.Service.ToggleCompleted(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondServiceError(w, r, "toggle_task", err)
		return
	}

	logger.Info("HTTP_OUT: Отметка выполнения изменена",
		zap.String("record_id", id.String()),
		zap.Bool("completed", updated.Completed),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithBody(w, http.StatusOK, dto.FromRecord(updated))
}
