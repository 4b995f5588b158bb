package jobs

import (
	"encoding/json"
	"strconv"
	"time"

	"citas-backend/internal/models"

	"github.com/hibiken/asynq"
)

const (
	TypeCalendarCreate = "calendar:create"
	TypeCalendarUpdate = "calendar:update"
	TypeCalendarDelete = "calendar:delete"

	TypeEmailConfirmation = "email:confirmation"
	TypeEmailCancellation = "email:cancellation"
)

// AppointmentPayload carries the appointment snapshot at enqueue time.
// Workers re-resolve patient contact data so late deliveries still use the
// current email address.
type AppointmentPayload struct {
	Appointment models.Appointment `json:"appointment"`
}

// DeletePayload only needs the external event reference; by the time the
// worker runs, the appointment is already cancelled locally.
type DeletePayload struct {
	AppointmentID   string `json:"appointmentId"`
	ExternalEventID string `json:"externalEventId"`
}

// TaskIDFor makes enqueueing idempotent per appointment transition: a
// retried dispatch of the same transition dedups on the id, while a later
// transition carries a fresh updatedAt and therefore a fresh id. Without
// the timestamp, a create that exhausted its retries would keep its id in
// asynq's archive and block the re-create a later confirm or reschedule
// issues to repair the missing event.
func TaskIDFor(appointment models.Appointment, taskType string) string {
	return appointment.ID + ":" + taskType + ":" + strconv.FormatInt(appointment.UpdatedAt.Unix(), 10)
}

func newAppointmentTask(taskType string, appointment models.Appointment) (*asynq.Task, error) {
	payload, err := json.Marshal(AppointmentPayload{Appointment: appointment})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, payload,
		asynq.TaskID(TaskIDFor(appointment, taskType)),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

func NewCalendarCreateTask(appointment models.Appointment) (*asynq.Task, error) {
	return newAppointmentTask(TypeCalendarCreate, appointment)
}

func NewCalendarUpdateTask(appointment models.Appointment) (*asynq.Task, error) {
	return newAppointmentTask(TypeCalendarUpdate, appointment)
}

func NewCalendarDeleteTask(appointment models.Appointment) (*asynq.Task, error) {
	payload, err := json.Marshal(DeletePayload{
		AppointmentID:   appointment.ID,
		ExternalEventID: appointment.ExternalEventID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCalendarDelete, payload,
		asynq.TaskID(TaskIDFor(appointment, TypeCalendarDelete)),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

func NewEmailTask(taskType string, appointment models.Appointment) (*asynq.Task, error) {
	return newAppointmentTask(taskType, appointment)
}
