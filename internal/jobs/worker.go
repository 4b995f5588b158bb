package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"citas-backend/internal/calendar"
	"citas-backend/internal/models"

	"github.com/hibiken/asynq"
)

type CalendarAPI interface {
	CreateEvent(ctx context.Context, event calendar.Event) (string, error)
	UpdateEvent(ctx context.Context, eventID string, event calendar.Event) error
	DeleteEvent(ctx context.Context, eventID string) error
}

type Mailer interface {
	SendAppointmentConfirmation(ctx context.Context, appointment models.Appointment, patient models.Patient) (string, error)
	SendCancellationToPatient(ctx context.Context, appointment models.Appointment, patient models.Patient) (string, error)
	SendCancellationNotice(ctx context.Context, appointment models.Appointment, patient models.Patient, practitionerEmail, practitionerName string) (string, error)
}

type PatientSource interface {
	FindByID(ctx context.Context, id string) (*models.Patient, error)
}

// EventRecorder persists the external calendar id after a successful create
// so later updates and deletions can reference it.
type EventRecorder interface {
	SetExternalEventID(ctx context.Context, id string, eventID string) error
}

type WorkerConfig struct {
	PractitionerEmail string
	PractitionerName  string
	Concurrency       int
}

type Worker struct {
	server   *asynq.Server
	calendar CalendarAPI
	mailer   Mailer
	patients PatientSource
	recorder EventRecorder
	log      *slog.Logger
	location *time.Location
	cfg      WorkerConfig
}

func NewWorker(redisOpt asynq.RedisClientOpt, calendarAPI CalendarAPI, mailer Mailer, patients PatientSource, recorder EventRecorder, log *slog.Logger, location *time.Location, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})
	return &Worker{
		server:   server,
		calendar: calendarAPI,
		mailer:   mailer,
		patients: patients,
		recorder: recorder,
		log:      log,
		location: location,
		cfg:      cfg,
	}
}

func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCalendarCreate, w.handleCalendarCreate)
	mux.HandleFunc(TypeCalendarUpdate, w.handleCalendarUpdate)
	mux.HandleFunc(TypeCalendarDelete, w.handleCalendarDelete)
	mux.HandleFunc(TypeEmailConfirmation, w.handleEmailConfirmation)
	mux.HandleFunc(TypeEmailCancellation, w.handleEmailCancellation)
	return w.server.Start(mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleCalendarCreate(ctx context.Context, task *asynq.Task) error {
	if w.calendar == nil {
		w.log.Warn("calendar create: calendar integration disabled")
		return nil
	}
	var payload AppointmentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("calendar create: decode payload: %w", err)
	}

	patient, err := w.patients.FindByID(ctx, payload.Appointment.PatientID)
	if err != nil {
		return err
	}
	if patient == nil {
		patient = &models.Patient{}
	}

	event, err := w.buildEvent(payload.Appointment, *patient)
	if err != nil {
		return err
	}
	eventID, err := w.calendar.CreateEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("calendar create: %w", err)
	}
	if err := w.recorder.SetExternalEventID(ctx, payload.Appointment.ID, eventID); err != nil {
		return fmt.Errorf("calendar create: record event id: %w", err)
	}

	w.log.Info("calendar create: ok",
		slog.String("appointmentId", payload.Appointment.ID),
		slog.String("eventId", eventID))
	return nil
}

func (w *Worker) handleCalendarUpdate(ctx context.Context, task *asynq.Task) error {
	if w.calendar == nil {
		w.log.Warn("calendar update: calendar integration disabled")
		return nil
	}
	var payload AppointmentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("calendar update: decode payload: %w", err)
	}
	if payload.Appointment.ExternalEventID == "" {
		w.log.Warn("calendar update: no external event id", slog.String("appointmentId", payload.Appointment.ID))
		return nil
	}

	patient, err := w.patients.FindByID(ctx, payload.Appointment.PatientID)
	if err != nil {
		return err
	}
	if patient == nil {
		patient = &models.Patient{}
	}

	event, err := w.buildEvent(payload.Appointment, *patient)
	if err != nil {
		return err
	}
	if err := w.calendar.UpdateEvent(ctx, payload.Appointment.ExternalEventID, event); err != nil {
		return fmt.Errorf("calendar update: %w", err)
	}

	w.log.Info("calendar update: ok",
		slog.String("appointmentId", payload.Appointment.ID),
		slog.String("eventId", payload.Appointment.ExternalEventID))
	return nil
}

func (w *Worker) handleCalendarDelete(ctx context.Context, task *asynq.Task) error {
	if w.calendar == nil {
		w.log.Warn("calendar delete: calendar integration disabled")
		return nil
	}
	var payload DeletePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("calendar delete: decode payload: %w", err)
	}
	if err := w.calendar.DeleteEvent(ctx, payload.ExternalEventID); err != nil {
		return fmt.Errorf("calendar delete: %w", err)
	}

	w.log.Info("calendar delete: ok",
		slog.String("appointmentId", payload.AppointmentID),
		slog.String("eventId", payload.ExternalEventID))
	return nil
}

func (w *Worker) handleEmailConfirmation(ctx context.Context, task *asynq.Task) error {
	if w.mailer == nil {
		w.log.Warn("email confirmation: mailer disabled")
		return nil
	}
	var payload AppointmentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("email confirmation: decode payload: %w", err)
	}

	patient, err := w.patients.FindByID(ctx, payload.Appointment.PatientID)
	if err != nil {
		return err
	}
	if patient == nil {
		w.log.Warn("email confirmation: patient gone", slog.String("appointmentId", payload.Appointment.ID))
		return nil
	}

	messageID, err := w.mailer.SendAppointmentConfirmation(ctx, payload.Appointment, *patient)
	if err != nil {
		return fmt.Errorf("email confirmation: %w", err)
	}
	w.log.Info("email confirmation: sent",
		slog.String("appointmentId", payload.Appointment.ID),
		slog.String("messageId", messageID))
	return nil
}

func (w *Worker) handleEmailCancellation(ctx context.Context, task *asynq.Task) error {
	if w.mailer == nil {
		w.log.Warn("email cancellation: mailer disabled")
		return nil
	}
	var payload AppointmentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("email cancellation: decode payload: %w", err)
	}

	patient, err := w.patients.FindByID(ctx, payload.Appointment.PatientID)
	if err != nil {
		return err
	}
	if patient == nil {
		w.log.Warn("email cancellation: patient gone", slog.String("appointmentId", payload.Appointment.ID))
		return nil
	}

	if _, err := w.mailer.SendCancellationToPatient(ctx, payload.Appointment, *patient); err != nil {
		return fmt.Errorf("email cancellation: patient: %w", err)
	}
	if w.cfg.PractitionerEmail != "" {
		if _, err := w.mailer.SendCancellationNotice(ctx, payload.Appointment, *patient, w.cfg.PractitionerEmail, w.cfg.PractitionerName); err != nil {
			return fmt.Errorf("email cancellation: practitioner notice: %w", err)
		}
	}

	w.log.Info("email cancellation: sent", slog.String("appointmentId", payload.Appointment.ID))
	return nil
}

// buildEvent formats the appointment as a calendar event in the practice
// timezone.
func (w *Worker) buildEvent(appointment models.Appointment, patient models.Patient) (calendar.Event, error) {
	summary := "Sesión"
	if patient.FullName != "" {
		summary = "Sesión con " + patient.FullName
	}

	event := calendar.Event{
		Summary:     summary,
		Description: appointment.Notes,
		Start: calendar.EventTime{
			DateTime: appointment.Date + "T" + appointment.Start + ":00",
			TimeZone: w.location.String(),
		},
		End: calendar.EventTime{
			DateTime: appointment.Date + "T" + appointment.End + ":00",
			TimeZone: w.location.String(),
		},
		Reminders: &calendar.Reminders{
			Overrides: []calendar.ReminderOverride{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 60},
			},
		},
	}
	if patient.Email != "" {
		event.Attendees = []calendar.Attendee{
			{Email: patient.Email, DisplayName: patient.FullName},
		}
	}
	return event, nil
}
