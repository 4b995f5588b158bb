package jobs

import (
	"context"
	"errors"
	"log/slog"

	"citas-backend/internal/models"

	"github.com/hibiken/asynq"
)

// AsynqDispatcher enqueues integration jobs onto the redis-backed queue.
// It implements the dispatcher the lifecycle service fires after a commit.
type AsynqDispatcher struct {
	client *asynq.Client
	log    *slog.Logger
}

func NewAsynqDispatcher(client *asynq.Client, log *slog.Logger) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, log: log}
}

func (d *AsynqDispatcher) AppointmentBooked(ctx context.Context, appointment models.Appointment, patient models.Patient) error {
	createTask, err := NewCalendarCreateTask(appointment)
	if err != nil {
		return err
	}
	if err := d.enqueue(ctx, createTask); err != nil {
		return err
	}

	emailTask, err := NewEmailTask(TypeEmailConfirmation, appointment)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, emailTask)
}

func (d *AsynqDispatcher) AppointmentConfirmed(ctx context.Context, appointment models.Appointment) error {
	var task *asynq.Task
	var err error
	if appointment.ExternalEventID == "" {
		task, err = NewCalendarCreateTask(appointment)
	} else {
		task, err = NewCalendarUpdateTask(appointment)
	}
	if err != nil {
		return err
	}
	if err := d.enqueue(ctx, task); err != nil {
		return err
	}

	emailTask, err := NewEmailTask(TypeEmailConfirmation, appointment)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, emailTask)
}

func (d *AsynqDispatcher) AppointmentCancelled(ctx context.Context, appointment models.Appointment, patient models.Patient) error {
	if appointment.ExternalEventID != "" {
		deleteTask, err := NewCalendarDeleteTask(appointment)
		if err != nil {
			return err
		}
		if err := d.enqueue(ctx, deleteTask); err != nil {
			return err
		}
	}

	emailTask, err := NewEmailTask(TypeEmailCancellation, appointment)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, emailTask)
}

func (d *AsynqDispatcher) AppointmentRescheduled(ctx context.Context, appointment models.Appointment) error {
	if appointment.ExternalEventID == "" {
		return nil
	}
	task, err := NewCalendarUpdateTask(appointment)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task)
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		// A duplicate id means the same transition was dispatched twice;
		// the job is already queued, which is the outcome we wanted.
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			d.log.Info("jobs: duplicate enqueue ignored", slog.String("type", task.Type()))
			return nil
		}
		return err
	}
	d.log.Info("jobs: enqueued",
		slog.String("type", task.Type()),
		slog.String("taskId", info.ID),
		slog.String("queue", info.Queue))
	return nil
}
