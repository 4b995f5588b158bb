package appointments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"citas-backend/internal/models"
	"citas-backend/internal/schedule"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrBookingConflict   = errors.New("booking conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOutsideHours      = errors.New("slot outside opening hours")
	ErrPastSlot          = errors.New("slot in the past")
)

// WindowSource resolves the open windows of a date, overrides included.
type WindowSource interface {
	WindowsFor(ctx context.Context, date string) ([]schedule.Window, error)
}

// PatientSource joins patient contact data into booking flows.
type PatientSource interface {
	FindByID(ctx context.Context, id string) (*models.Patient, error)
}

// Dispatcher enqueues the external side effects of a transition. Enqueue
// failures are logged and never fail the booking itself.
type Dispatcher interface {
	AppointmentBooked(ctx context.Context, appointment models.Appointment, patient models.Patient) error
	AppointmentConfirmed(ctx context.Context, appointment models.Appointment) error
	AppointmentCancelled(ctx context.Context, appointment models.Appointment, patient models.Patient) error
	AppointmentRescheduled(ctx context.Context, appointment models.Appointment) error
}

type Service struct {
	repo     Repository
	patients PatientSource
	windows  WindowSource
	locker   Locker
	dispatch Dispatcher
	log      *slog.Logger
	location *time.Location
}

func NewService(repo Repository, patients PatientSource, windows WindowSource, locker Locker, dispatch Dispatcher, log *slog.Logger, location *time.Location) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		windows:  windows,
		locker:   locker,
		dispatch: dispatch,
		log:      log,
		location: location,
	}
}

const (
	lockAttempts   = 4
	lockRetryDelay = 50 * time.Millisecond
)

// acquireLock waits out brief contention on the date lock before giving
// up. The holder only runs one overlap query plus an insert, so a held
// lock usually frees within a retry or two; surfacing it immediately would
// turn a booking for a different slot on the same day into a false
// conflict.
func (s *Service) acquireLock(ctx context.Context, date string) (func(), error) {
	for attempt := 1; ; attempt++ {
		release, err := s.locker.Acquire(ctx, date)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrLockHeld) || attempt == lockAttempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// ReservedIntervals reports the intervals held by non-cancelled
// appointments on a date.
func (s *Service) ReservedIntervals(ctx context.Context, date string) ([]schedule.Interval, error) {
	return s.repo.ReservedIntervals(ctx, date, "")
}

// BookedSource feeds reserved intervals to the slot read path straight off
// the repository, so it can be wired before this service exists.
type BookedSource struct {
	repo Repository
}

func NewBookedSource(repo Repository) *BookedSource {
	return &BookedSource{repo: repo}
}

func (s *BookedSource) ReservedIntervals(ctx context.Context, date string) ([]schedule.Interval, error) {
	return s.repo.ReservedIntervals(ctx, date, "")
}

// Create books a slot. All patient-created bookings are confirmed on
// creation; pending is reachable only through the admin status parameter
// and then requires an explicit confirm.
func (s *Service) Create(ctx context.Context, req CreateRequest, status string) (models.Appointment, *models.Patient, error) {
	if status == "" {
		status = models.AppointmentStatusConfirmed
	}

	interval, err := s.validateSlot(ctx, req.Date, req.Start, req.End, time.Now())
	if err != nil {
		return models.Appointment{}, nil, err
	}

	patient, err := s.patients.FindByID(ctx, req.PatientID)
	if err != nil {
		return models.Appointment{}, nil, err
	}
	if patient == nil {
		return models.Appointment{}, nil, ErrPatientNotFound
	}

	release, err := s.acquireLock(ctx, req.Date)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return models.Appointment{}, nil, ErrBookingConflict
		}
		return models.Appointment{}, nil, err
	}
	defer release()

	reserved, err := s.repo.ReservedIntervals(ctx, req.Date, "")
	if err != nil {
		return models.Appointment{}, nil, err
	}
	if schedule.OverlapsAny(interval, reserved) {
		return models.Appointment{}, nil, ErrBookingConflict
	}

	appointment, err := s.repo.Insert(ctx, models.Appointment{
		PatientID: req.PatientID,
		Date:      req.Date,
		Start:     req.Start,
		End:       req.End,
		Type:      req.Type,
		Status:    status,
		Notes:     req.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return models.Appointment{}, nil, ErrBookingConflict
		}
		return models.Appointment{}, nil, err
	}

	if appointment.Status == models.AppointmentStatusConfirmed {
		s.notify("booked", func(ctx context.Context) error {
			return s.dispatch.AppointmentBooked(ctx, appointment, *patient)
		})
	}
	return appointment, patient, nil
}

// Confirm moves a pending appointment to confirmed. Repeating a confirm is
// a transition error; the enqueued calendar job is create-or-update, so a
// retried delivery stays idempotent downstream.
func (s *Service) Confirm(ctx context.Context, id string) (models.Appointment, error) {
	current, err := s.mustFind(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if current.Status != models.AppointmentStatusPending {
		return models.Appointment{}, ErrInvalidTransition
	}

	updated, err := s.repo.Transition(ctx, id,
		[]string{models.AppointmentStatusPending},
		StatusUpdate{Status: models.AppointmentStatusConfirmed})
	if err != nil {
		return models.Appointment{}, err
	}
	if updated == nil {
		return models.Appointment{}, ErrInvalidTransition
	}

	confirmed := *updated
	s.notify("confirmed", func(ctx context.Context) error {
		return s.dispatch.AppointmentConfirmed(ctx, confirmed)
	})
	return confirmed, nil
}

// Cancel is valid from pending or confirmed; cancelled and completed are
// terminal. The local cancellation commits regardless of what later
// happens to the calendar deletion or the emails.
func (s *Service) Cancel(ctx context.Context, id string, req CancelRequest) (models.Appointment, error) {
	current, err := s.mustFind(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if current.Status != models.AppointmentStatusPending && current.Status != models.AppointmentStatusConfirmed {
		return models.Appointment{}, ErrInvalidTransition
	}

	cancelledBy := req.CancelledBy
	if cancelledBy == "" {
		cancelledBy = models.CancelledByPatient
	}

	updated, err := s.repo.Transition(ctx, id,
		[]string{models.AppointmentStatusPending, models.AppointmentStatusConfirmed},
		StatusUpdate{
			Status:             models.AppointmentStatusCancelled,
			CancellationReason: req.Reason,
			CancelledBy:        cancelledBy,
		})
	if err != nil {
		return models.Appointment{}, err
	}
	if updated == nil {
		return models.Appointment{}, ErrInvalidTransition
	}

	cancelled := *updated
	patient, err := s.patients.FindByID(ctx, cancelled.PatientID)
	if err != nil || patient == nil {
		s.log.Error("cancel: patient lookup failed", slog.String("appointmentId", id))
		patient = &models.Patient{}
	}
	s.notify("cancelled", func(ctx context.Context) error {
		return s.dispatch.AppointmentCancelled(ctx, cancelled, *patient)
	})
	return cancelled, nil
}

// Complete closes out a held session. No external side effects.
func (s *Service) Complete(ctx context.Context, id string) (models.Appointment, error) {
	current, err := s.mustFind(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if current.Status != models.AppointmentStatusConfirmed {
		return models.Appointment{}, ErrInvalidTransition
	}

	updated, err := s.repo.Transition(ctx, id,
		[]string{models.AppointmentStatusConfirmed},
		StatusUpdate{Status: models.AppointmentStatusCompleted})
	if err != nil {
		return models.Appointment{}, err
	}
	if updated == nil {
		return models.Appointment{}, ErrInvalidTransition
	}
	return *updated, nil
}

// Reschedule moves an appointment to a new slot. The appointment's own
// interval is excluded from the conflict set, so moving within or onto its
// current slot succeeds. The status resets to pending for re-confirmation.
func (s *Service) Reschedule(ctx context.Context, id string, req RescheduleRequest) (models.Appointment, error) {
	current, err := s.mustFind(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if current.Status != models.AppointmentStatusPending && current.Status != models.AppointmentStatusConfirmed {
		return models.Appointment{}, ErrInvalidTransition
	}

	interval, err := s.validateSlot(ctx, req.Date, req.Start, req.End, time.Now())
	if err != nil {
		return models.Appointment{}, err
	}

	release, err := s.acquireLock(ctx, req.Date)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return models.Appointment{}, ErrBookingConflict
		}
		return models.Appointment{}, err
	}
	defer release()

	reserved, err := s.repo.ReservedIntervals(ctx, req.Date, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if schedule.OverlapsAny(interval, reserved) {
		return models.Appointment{}, ErrBookingConflict
	}

	updated, err := s.repo.Transition(ctx, id,
		[]string{models.AppointmentStatusPending, models.AppointmentStatusConfirmed},
		StatusUpdate{
			Status: models.AppointmentStatusPending,
			Date:   req.Date,
			Start:  req.Start,
			End:    req.End,
		})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return models.Appointment{}, ErrBookingConflict
		}
		return models.Appointment{}, err
	}
	if updated == nil {
		return models.Appointment{}, ErrInvalidTransition
	}

	rescheduled := *updated
	s.notify("rescheduled", func(ctx context.Context) error {
		return s.dispatch.AppointmentRescheduled(ctx, rescheduled)
	})
	return rescheduled, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Appointment, error) {
	appointment, err := s.mustFind(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	return *appointment, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.Appointment, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) mustFind(ctx context.Context, id string) (*models.Appointment, error) {
	appointment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment == nil {
		return nil, ErrNotFound
	}
	return appointment, nil
}

// validateSlot checks interval shape, rejects starts in the past and
// requires the interval to sit inside one open window of the date.
func (s *Service) validateSlot(ctx context.Context, date, start, end string, now time.Time) (schedule.Interval, error) {
	interval, err := schedule.ParseInterval(start, end)
	if err != nil {
		return schedule.Interval{}, err
	}

	past, err := schedule.IsSlotPast(date, start, s.location, now)
	if err != nil {
		return schedule.Interval{}, err
	}
	if past {
		return schedule.Interval{}, ErrPastSlot
	}

	windows, err := s.windows.WindowsFor(ctx, date)
	if err != nil {
		return schedule.Interval{}, err
	}
	for _, window := range windows {
		open, err := schedule.ParseInterval(window.Start, window.End)
		if err != nil {
			return schedule.Interval{}, err
		}
		if open.Start <= interval.Start && interval.End <= open.End {
			return interval, nil
		}
	}
	return schedule.Interval{}, ErrOutsideHours
}

func (s *Service) notify(event string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Error("dispatch: enqueue failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}()
}
