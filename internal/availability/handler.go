package availability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"citas-backend/internal/cache"
	"citas-backend/internal/httpx"
	"citas-backend/internal/middleware"
	"citas-backend/internal/schedule"
	"citas-backend/internal/transport"
	"citas-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

const cachePrefix = "availability:"

// SettingsSource provides the configured default slot duration.
type SettingsSource interface {
	SlotDuration(ctx context.Context) int
}

type Handler struct {
	service  *Service
	settings SettingsSource
	val      *validation.Validator
	log      *slog.Logger
	cache    cache.Cache
	location *time.Location
	cacheTTL time.Duration
}

func NewHandler(service *Service, settings SettingsSource, val *validation.Validator, log *slog.Logger, cacheStore cache.Cache, location *time.Location, cacheTTL time.Duration) *Handler {
	return &Handler{
		service:  service,
		settings: settings,
		val:      val,
		log:      log,
		cache:    cacheStore,
		location: location,
		cacheTTL: cacheTTL,
	}
}

type availabilityQuery struct {
	Date string `validate:"required,date"`
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	q := availabilityQuery{Date: r.URL.Query().Get("date")}
	if err := h.val.Struct(q); err != nil {
		log.Warn("availability: invalid query")
		transport.WriteError(w, http.StatusBadRequest, "invalid query", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	duration, err := httpx.ParseDurationMinutes(r.URL.Query().Get("duration"), h.settings.SlotDuration(r.Context()))
	if err != nil {
		log.Warn("availability: invalid duration")
		transport.WriteError(w, http.StatusBadRequest, "invalid duration", nil)
		return
	}

	cacheKey := cachePrefix + q.Date + ":" + strconv.Itoa(duration)
	if cached, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
		log.Info("availability: cache hit", slog.String("date", q.Date))
		transport.WriteRawJSON(w, http.StatusOK, cached)
		return
	}

	past, err := schedule.IsDatePast(q.Date, h.location, time.Now())
	if err != nil {
		log.Warn("availability: invalid date", slog.String("date", q.Date))
		transport.WriteError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}
	if past {
		log.Warn("availability: date in the past", slog.String("date", q.Date))
		transport.WriteError(w, http.StatusBadRequest, "date in the past", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	slots, err := h.service.SlotsFor(ctx, q.Date, duration, time.Now())
	if err != nil {
		log.Error("availability: compute error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "availability error", nil)
		return
	}

	response := map[string]interface{}{
		"date":     q.Date,
		"timezone": h.location.String(),
		"duration": duration,
		"slots":    slots,
	}

	if payload, err := json.Marshal(response); err == nil {
		_ = h.cache.Set(r.Context(), cacheKey, payload, h.cacheTTL)
	}

	log.Info("availability: ok", slog.String("date", q.Date), slog.Int("duration", duration), slog.Int("slots", len(slots)))
	transport.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) GetNextAvailability(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	from := r.URL.Query().Get("from")
	if from == "" {
		from = time.Now().In(h.location).Format("2006-01-02")
	}
	if err := h.val.Struct(availabilityQuery{Date: from}); err != nil {
		log.Warn("availability next: invalid date")
		transport.WriteError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}

	duration, err := httpx.ParseDurationMinutes(r.URL.Query().Get("duration"), h.settings.SlotDuration(r.Context()))
	if err != nil {
		log.Warn("availability next: invalid duration")
		transport.WriteError(w, http.StatusBadRequest, "invalid duration", nil)
		return
	}

	past, err := schedule.IsDatePast(from, h.location, time.Now())
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}
	if past {
		transport.WriteError(w, http.StatusBadRequest, "date in the past", nil)
		return
	}

	startDate, err := schedule.ParseDate(from, h.location)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}

	const searchDays = 30
	for i := 0; i < searchDays; i++ {
		current := startDate.AddDate(0, 0, i)
		dateStr := current.Format("2006-01-02")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		slots, err := h.service.SlotsFor(ctx, dateStr, duration, time.Now())
		cancel()
		if err != nil {
			log.Error("availability next: compute error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "availability error", nil)
			return
		}
		for _, slot := range slots {
			if !slot.Available {
				continue
			}
			response := map[string]interface{}{
				"date":     dateStr,
				"time":     slot.Start,
				"timezone": h.location.String(),
				"duration": duration,
			}
			log.Info("availability next: ok", slog.String("date", dateStr), slog.String("time", slot.Start))
			transport.WriteJSON(w, http.StatusOK, response)
			return
		}
	}

	transport.WriteError(w, http.StatusNotFound, "no availability found", map[string]string{"days": strconv.Itoa(searchDays)})
}

func (h *Handler) AdminListTemplates(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.service.ListTemplates(ctx)
	if err != nil {
		log.Error("admin templates list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("admin templates list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": items})
}

func (h *Handler) AdminReplaceTemplates(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	var req ReplaceTemplatesRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("admin templates replace: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("admin templates replace: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, err := h.service.ReplaceTemplates(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidBlock) {
			log.Warn("admin templates replace: invalid block")
			transport.WriteError(w, http.StatusBadRequest, "invalid time block", nil)
			return
		}
		log.Error("admin templates replace: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	h.invalidate(r.Context())
	log.Info("admin templates replace: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": items})
}

func (h *Handler) AdminUpsertOverride(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	date := chi.URLParam(r, "date")
	if err := h.val.Struct(availabilityQuery{Date: date}); err != nil {
		log.Warn("admin override upsert: invalid date")
		transport.WriteError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}

	var req UpsertOverrideRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("admin override upsert: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("admin override upsert: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	override, err := h.service.UpsertOverride(ctx, date, req)
	if err != nil {
		if errors.Is(err, ErrInvalidBlock) {
			log.Warn("admin override upsert: invalid block", slog.String("date", date))
			transport.WriteError(w, http.StatusBadRequest, "invalid time block", nil)
			return
		}
		log.Error("admin override upsert: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	h.invalidate(r.Context())
	log.Info("admin override upsert: ok", slog.String("date", date), slog.Bool("unavailable", override.IsUnavailable))
	transport.WriteJSON(w, http.StatusOK, override)
}

func (h *Handler) AdminDeleteOverride(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	date := chi.URLParam(r, "date")
	if err := h.val.Struct(availabilityQuery{Date: date}); err != nil {
		log.Warn("admin override delete: invalid date")
		transport.WriteError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deleted, err := h.service.DeleteOverride(ctx, date)
	if err != nil {
		log.Error("admin override delete: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}
	if !deleted {
		log.Warn("admin override delete: not found", slog.String("date", date))
		transport.WriteError(w, http.StatusNotFound, "override not found", nil)
		return
	}

	h.invalidate(r.Context())
	log.Info("admin override delete: ok", slog.String("date", date))
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) AdminBlockRange(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	var req RangeRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("admin block range: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("admin block range: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	blocked, err := h.service.BlockRange(ctx, req)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidWindow) {
			log.Warn("admin block range: invalid range")
			transport.WriteError(w, http.StatusBadRequest, "invalid date range", nil)
			return
		}
		log.Error("admin block range: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	h.invalidate(r.Context())
	log.Info("admin block range: ok", slog.String("from", req.StartDate), slog.String("to", req.EndDate), slog.Int("dates", blocked))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "blocked", "dates": blocked})
}

func (h *Handler) AdminUnblockRange(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	var req RangeRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("admin unblock range: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("admin unblock range: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	deleted, err := h.service.UnblockRange(ctx, req)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidWindow) {
			log.Warn("admin unblock range: invalid range")
			transport.WriteError(w, http.StatusBadRequest, "invalid date range", nil)
			return
		}
		log.Error("admin unblock range: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	h.invalidate(r.Context())
	log.Info("admin unblock range: ok", slog.String("from", req.StartDate), slog.String("to", req.EndDate), slog.Int64("deleted", deleted))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "unblocked", "deleted": deleted})
}

func (h *Handler) invalidate(ctx context.Context) {
	_ = h.cache.DeletePrefix(ctx, cachePrefix)
}
