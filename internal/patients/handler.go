package patients

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"citas-backend/internal/httpx"
	"citas-backend/internal/middleware"
	"citas-backend/internal/transport"
	"citas-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// Create is the public find-or-create step the booking form runs before
// reserving a slot.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	var req CreateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("patient create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("patient create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	patient, created, err := h.service.CreateOrFetch(ctx, req)
	if err != nil {
		log.Error("patient create: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	log.Info("patient create: ok", slog.String("patientId", patient.ID), slog.Bool("created", created))
	transport.WriteJSON(w, status, patient)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	patient, err := h.service.FindByID(ctx, id)
	if err != nil {
		log.Error("patient get: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}
	if patient == nil {
		transport.WriteError(w, http.StatusNotFound, "patient not found", nil)
		return
	}
	transport.WriteJSON(w, http.StatusOK, patient)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)
	id := chi.URLParam(r, "id")

	var req UpdateRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("patient update: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("patient update: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	patient, err := h.service.Update(ctx, id, req)
	if err != nil {
		log.Error("patient update: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}
	if patient == nil {
		transport.WriteError(w, http.StatusNotFound, "patient not found", nil)
		return
	}

	log.Info("patient update: ok", slog.String("patientId", id))
	transport.WriteJSON(w, http.StatusOK, patient)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	log := middleware.WithRequest(h.log, r)

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 50, 200)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid pagination", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	items, err := h.service.List(ctx, r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		log.Error("patient list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	log.Info("patient list: ok", slog.Int("count", len(items)))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"patients": items,
		"limit":    limit,
		"offset":   offset,
	})
}
