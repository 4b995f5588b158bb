package appointments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"citas-backend/internal/cache"
	"citas-backend/internal/httpx"
	"citas-backend/internal/middleware"
	"citas-backend/internal/models"
	"citas-backend/internal/schedule"
	"citas-backend/internal/transport"
	"citas-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

// SlotSource re-renders a date's slots so conflict responses can carry the
// fresh state for the caller to pick from.
type SlotSource interface {
	SlotsFor(ctx context.Context, date string, duration int, now time.Time) ([]models.TimeSlot, error)
}

type SettingsSource interface {
	SlotDuration(ctx context.Context) int
}

type Handler struct {
	service  *Service
	slots    SlotSource
	settings SettingsSource
	val      *validation.Validator
	log      *slog.Logger
	cache    cache.Cache
}

func NewHandler(service *Service, slots SlotSource, settings SettingsSource, val *validation.Validator, log *slog.Logger, cacheStore cache.Cache) *Handler {
	return &Handler{
		service:  service,
		slots:    slots,
		settings: settings,
		val:      val,
		log:      log,
		cache:    cacheStore,
	}
}

type appointmentResponse struct {
	models.Appointment
	Patient *models.Patient `json:"patient,omitempty"`
}

// Create handles the public booking endpoint. Bookings confirm on creation.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	var req CreateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("appointment create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("appointment create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	appointment, patient, err := h.service.Create(ctx, req, models.AppointmentStatusConfirmed)
	if err != nil {
		h.writeCreateError(w, r, log, req.Date, err)
		return
	}

	h.invalidateAvailability(r.Context())
	log.Info("appointment create: ok",
		slog.String("appointmentId", appointment.ID),
		slog.String("date", appointment.Date),
		slog.String("start", appointment.Start))
	transport.WriteJSON(w, http.StatusCreated, appointmentResponse{Appointment: appointment, Patient: patient})
}

// AdminCreate lets the practitioner book on behalf of a patient, optionally
// holding the slot as pending.
func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	var req AdminCreateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("admin appointment create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("admin appointment create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	appointment, patient, err := h.service.Create(ctx, req.CreateRequest, req.Status)
	if err != nil {
		h.writeCreateError(w, r, log, req.Date, err)
		return
	}

	h.invalidateAvailability(r.Context())
	log.Info("admin appointment create: ok",
		slog.String("appointmentId", appointment.ID),
		slog.String("status", appointment.Status))
	transport.WriteJSON(w, http.StatusCreated, appointmentResponse{Appointment: appointment, Patient: patient})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appointment, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
			return
		}
		log.Error("appointment get: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}
	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 50, 200)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid pagination", nil)
		return
	}
	filter := ListFilter{
		Date:      r.URL.Query().Get("date"),
		FromDate:  r.URL.Query().Get("from"),
		ToDate:    r.URL.Query().Get("to"),
		Status:    r.URL.Query().Get("status"),
		PatientID: r.URL.Query().Get("patientId"),
		Limit:     limit,
		Offset:    offset,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, err := h.service.List(ctx, filter)
	if err != nil {
		log.Error("admin appointment list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("admin appointment list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": items,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appointment, err := h.service.Confirm(ctx, id)
	if err != nil {
		h.writeTransitionError(w, log, "confirm", id, err)
		return
	}

	log.Info("appointment confirm: ok", slog.String("appointmentId", id))
	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, models.CancelledByPatient)
}

func (h *Handler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, models.CancelledByPsychologist)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, defaultBy string) {
	log := middleware.WithRequest(h.log, r)
	id := chi.URLParam(r, "id")

	var req CancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r.Body, &req); err != nil {
			log.Warn("appointment cancel: invalid json")
			transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			log.Warn("appointment cancel: validation error")
			transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
			return
		}
	}
	if req.CancelledBy == "" {
		req.CancelledBy = defaultBy
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appointment, err := h.service.Cancel(ctx, id, req)
	if err != nil {
		h.writeTransitionError(w, log, "cancel", id, err)
		return
	}

	h.invalidateAvailability(r.Context())
	log.Info("appointment cancel: ok",
		slog.String("appointmentId", id),
		slog.String("cancelledBy", appointment.CancelledBy))
	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appointment, err := h.service.Complete(ctx, id)
	if err != nil {
		h.writeTransitionError(w, log, "complete", id, err)
		return
	}

	log.Info("appointment complete: ok", slog.String("appointmentId", id))
	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	id := chi.URLParam(r, "id")

	var req RescheduleRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("appointment reschedule: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("appointment reschedule: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	appointment, err := h.service.Reschedule(ctx, id, req)
	if err != nil {
		if errors.Is(err, ErrBookingConflict) {
			h.writeConflict(w, r, log, req.Date)
			return
		}
		h.writeTransitionError(w, log, "reschedule", id, err)
		return
	}

	h.invalidateAvailability(r.Context())
	log.Info("appointment reschedule: ok",
		slog.String("appointmentId", id),
		slog.String("date", appointment.Date),
		slog.String("start", appointment.Start))
	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) writeCreateError(w http.ResponseWriter, r *http.Request, log *slog.Logger, date string, err error) {
	switch {
	case errors.Is(err, ErrBookingConflict):
		log.Warn("appointment create: conflict", slog.String("date", date))
		h.writeConflict(w, r, log, date)
	case errors.Is(err, ErrPatientNotFound):
		log.Warn("appointment create: patient not found")
		transport.WriteError(w, http.StatusNotFound, "patient not found", nil)
	case errors.Is(err, ErrPastSlot):
		log.Warn("appointment create: slot in the past")
		transport.WriteError(w, http.StatusBadRequest, "slot in the past", nil)
	case errors.Is(err, ErrOutsideHours):
		log.Warn("appointment create: outside opening hours")
		transport.WriteError(w, http.StatusBadRequest, "slot outside opening hours", nil)
	case errors.Is(err, schedule.ErrInvalidWindow), errors.Is(err, schedule.ErrInvalidTime), errors.Is(err, schedule.ErrInvalidDate):
		log.Warn("appointment create: invalid slot")
		transport.WriteError(w, http.StatusBadRequest, "invalid slot", nil)
	default:
		log.Error("appointment create: error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "booking error", nil)
	}
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, log *slog.Logger, action, id string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn("appointment "+action+": not found", slog.String("appointmentId", id))
		transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		log.Warn("appointment "+action+": invalid transition", slog.String("appointmentId", id))
		transport.WriteError(w, http.StatusConflict, "invalid status transition", nil)
	case errors.Is(err, ErrPastSlot):
		transport.WriteError(w, http.StatusBadRequest, "slot in the past", nil)
	case errors.Is(err, ErrOutsideHours):
		transport.WriteError(w, http.StatusBadRequest, "slot outside opening hours", nil)
	case errors.Is(err, schedule.ErrInvalidWindow), errors.Is(err, schedule.ErrInvalidTime), errors.Is(err, schedule.ErrInvalidDate):
		transport.WriteError(w, http.StatusBadRequest, "invalid slot", nil)
	default:
		log.Error("appointment "+action+": error", slog.String("appointmentId", id), slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
	}
}

// writeConflict answers a booking conflict with the date's refreshed slots
// so the caller can offer an alternative without a second round trip.
func (h *Handler) writeConflict(w http.ResponseWriter, r *http.Request, log *slog.Logger, date string) {
	extra := map[string]interface{}{"date": date}
	slots, err := h.slots.SlotsFor(r.Context(), date, h.settings.SlotDuration(r.Context()), time.Now())
	if err != nil {
		log.Error("conflict slots refresh failed", slog.String("error", err.Error()))
	} else {
		extra["slots"] = slots
	}
	transport.WriteErrorExtra(w, http.StatusConflict, "slot no longer available", extra)
}

func (h *Handler) invalidateAvailability(ctx context.Context) {
	_ = h.cache.DeletePrefix(ctx, "availability:")
}
