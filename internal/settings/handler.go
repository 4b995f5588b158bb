package settings

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"citas-backend/internal/httpx"
	"citas-backend/internal/middleware"
	"citas-backend/internal/models"
	"citas-backend/internal/transport"
	"citas-backend/internal/validation"
)

type UpdateRequest struct {
	SlotDurationMinutes int    `json:"slotDurationMinutes" validate:"required,minutes5,min=15,max=240"`
	SessionPriceCents   int    `json:"sessionPriceCents" validate:"gte=0"`
	Currency            string `json:"currency" validate:"required,len=3"`
	VirtualEnabled      bool   `json:"virtualEnabled"`
}

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// Get is public: the booking form needs the slot duration and price before
// the patient picks a slot.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	settings, err := h.service.Get(ctx)
	if err != nil {
		log.Error("settings get: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}
	transport.WriteJSON(w, http.StatusOK, settings)
}

func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	var req UpdateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("settings update: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("settings update: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	saved, err := h.service.Save(ctx, models.BookingSettings{
		SlotDurationMinutes: req.SlotDurationMinutes,
		SessionPriceCents:   req.SessionPriceCents,
		Currency:            req.Currency,
		VirtualEnabled:      req.VirtualEnabled,
	})
	if err != nil {
		log.Error("settings update: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("settings update: ok", slog.Int("slotDuration", saved.SlotDurationMinutes))
	transport.WriteJSON(w, http.StatusOK, saved)
}
