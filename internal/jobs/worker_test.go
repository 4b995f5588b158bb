package jobs

import (
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"citas-backend/internal/calendar"
	"citas-backend/internal/models"

	"github.com/hibiken/asynq"
)

type fakeCalendar struct {
	created []calendar.Event
	updated map[string]calendar.Event
	deleted []string
	nextID  string
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, event calendar.Event) (string, error) {
	f.created = append(f.created, event)
	return f.nextID, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, eventID string, event calendar.Event) error {
	if f.updated == nil {
		f.updated = make(map[string]calendar.Event)
	}
	f.updated[eventID] = event
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeMailer struct {
	confirmations []string
	cancellations []string
	notices       []string
}

func (f *fakeMailer) SendAppointmentConfirmation(ctx context.Context, appointment models.Appointment, patient models.Patient) (string, error) {
	f.confirmations = append(f.confirmations, patient.Email)
	return "msg-1", nil
}

func (f *fakeMailer) SendCancellationToPatient(ctx context.Context, appointment models.Appointment, patient models.Patient) (string, error) {
	f.cancellations = append(f.cancellations, patient.Email)
	return "msg-2", nil
}

func (f *fakeMailer) SendCancellationNotice(ctx context.Context, appointment models.Appointment, patient models.Patient, practitionerEmail, practitionerName string) (string, error) {
	f.notices = append(f.notices, practitionerEmail)
	return "msg-3", nil
}

type fakePatients struct{}

func (f *fakePatients) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	return &models.Patient{ID: id, FullName: "Ana García", Email: "ana@example.com"}, nil
}

type fakeRecorder struct {
	recorded map[string]string
}

func (f *fakeRecorder) SetExternalEventID(ctx context.Context, id string, eventID string) error {
	if f.recorded == nil {
		f.recorded = make(map[string]string)
	}
	f.recorded[id] = eventID
	return nil
}

func testAppointment() models.Appointment {
	return models.Appointment{
		ID:        "appt-1",
		PatientID: "p1",
		Date:      "2030-01-07",
		Start:     "10:00",
		End:       "10:50",
		Type:      models.SessionVirtual,
		Status:    models.AppointmentStatusConfirmed,
	}
}

func newTestWorker(t *testing.T, cal *fakeCalendar, mailer *fakeMailer, recorder *fakeRecorder) *Worker {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return NewWorker(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, cal, mailer, &fakePatients{}, recorder,
		slog.New(slog.NewTextHandler(testWriter{t}, nil)), loc,
		WorkerConfig{PractitionerEmail: "consulta@example.com", PractitionerName: "Consulta"})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestTaskIDFor(t *testing.T) {
	appointment := testAppointment()
	appointment.UpdatedAt = time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)

	got := TaskIDFor(appointment, TypeCalendarCreate)
	want := "appt-1:calendar:create:" + strconv.FormatInt(appointment.UpdatedAt.Unix(), 10)
	if got != want {
		t.Fatalf("unexpected task id %q, want %q", got, want)
	}
}

func TestTaskIDScopedToTransition(t *testing.T) {
	appointment := testAppointment()
	appointment.UpdatedAt = time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)

	first := TaskIDFor(appointment, TypeCalendarCreate)
	if again := TaskIDFor(appointment, TypeCalendarCreate); again != first {
		t.Fatalf("retried dispatch of one transition must dedup: %q vs %q", first, again)
	}

	// A confirm or reschedule after an exhausted create writes a new
	// updatedAt; its create task must not collide with the archived one.
	appointment.UpdatedAt = appointment.UpdatedAt.Add(time.Minute)
	if second := TaskIDFor(appointment, TypeCalendarCreate); second == first {
		t.Fatalf("a later transition must get a fresh task id, both were %q", first)
	}
}

func TestCalendarCreateRecordsEventID(t *testing.T) {
	cal := &fakeCalendar{nextID: "evt-9"}
	recorder := &fakeRecorder{}
	worker := newTestWorker(t, cal, &fakeMailer{}, recorder)

	task, err := NewCalendarCreateTask(testAppointment())
	if err != nil {
		t.Fatalf("NewCalendarCreateTask: %v", err)
	}
	if err := worker.handleCalendarCreate(context.Background(), task); err != nil {
		t.Fatalf("handleCalendarCreate: %v", err)
	}

	if len(cal.created) != 1 {
		t.Fatalf("expected one created event, got %d", len(cal.created))
	}
	event := cal.created[0]
	if event.Start.DateTime != "2030-01-07T10:00:00" || event.Start.TimeZone != "Europe/Madrid" {
		t.Errorf("unexpected event start %+v", event.Start)
	}
	if event.End.DateTime != "2030-01-07T10:50:00" {
		t.Errorf("unexpected event end %+v", event.End)
	}
	if len(event.Attendees) != 1 || event.Attendees[0].Email != "ana@example.com" {
		t.Errorf("patient should attend the event: %+v", event.Attendees)
	}
	if recorder.recorded["appt-1"] != "evt-9" {
		t.Errorf("external event id not recorded: %v", recorder.recorded)
	}
}

func TestCalendarUpdateUsesExternalID(t *testing.T) {
	cal := &fakeCalendar{}
	worker := newTestWorker(t, cal, &fakeMailer{}, &fakeRecorder{})

	appointment := testAppointment()
	appointment.ExternalEventID = "evt-9"
	task, err := NewCalendarUpdateTask(appointment)
	if err != nil {
		t.Fatalf("NewCalendarUpdateTask: %v", err)
	}
	if err := worker.handleCalendarUpdate(context.Background(), task); err != nil {
		t.Fatalf("handleCalendarUpdate: %v", err)
	}
	if _, ok := cal.updated["evt-9"]; !ok {
		t.Fatalf("expected an update for evt-9, got %v", cal.updated)
	}
}

func TestCalendarUpdateWithoutExternalIDIsNoop(t *testing.T) {
	cal := &fakeCalendar{}
	worker := newTestWorker(t, cal, &fakeMailer{}, &fakeRecorder{})

	task, err := NewCalendarUpdateTask(testAppointment())
	if err != nil {
		t.Fatalf("NewCalendarUpdateTask: %v", err)
	}
	if err := worker.handleCalendarUpdate(context.Background(), task); err != nil {
		t.Fatalf("handleCalendarUpdate: %v", err)
	}
	if len(cal.updated) != 0 {
		t.Fatal("no update should be issued without an external id")
	}
}

func TestCalendarDelete(t *testing.T) {
	cal := &fakeCalendar{}
	worker := newTestWorker(t, cal, &fakeMailer{}, &fakeRecorder{})

	appointment := testAppointment()
	appointment.ExternalEventID = "evt-9"
	task, err := NewCalendarDeleteTask(appointment)
	if err != nil {
		t.Fatalf("NewCalendarDeleteTask: %v", err)
	}
	if err := worker.handleCalendarDelete(context.Background(), task); err != nil {
		t.Fatalf("handleCalendarDelete: %v", err)
	}
	if len(cal.deleted) != 1 || cal.deleted[0] != "evt-9" {
		t.Fatalf("expected evt-9 deleted, got %v", cal.deleted)
	}
}

func TestEmailCancellationNotifiesBothParties(t *testing.T) {
	mailer := &fakeMailer{}
	worker := newTestWorker(t, &fakeCalendar{}, mailer, &fakeRecorder{})

	appointment := testAppointment()
	appointment.Status = models.AppointmentStatusCancelled
	appointment.CancelledBy = models.CancelledByPatient
	task, err := NewEmailTask(TypeEmailCancellation, appointment)
	if err != nil {
		t.Fatalf("NewEmailTask: %v", err)
	}
	if err := worker.handleEmailCancellation(context.Background(), task); err != nil {
		t.Fatalf("handleEmailCancellation: %v", err)
	}

	if len(mailer.cancellations) != 1 || mailer.cancellations[0] != "ana@example.com" {
		t.Errorf("patient cancellation email missing: %v", mailer.cancellations)
	}
	if len(mailer.notices) != 1 || mailer.notices[0] != "consulta@example.com" {
		t.Errorf("practitioner notice missing: %v", mailer.notices)
	}
}

func TestEmailConfirmation(t *testing.T) {
	mailer := &fakeMailer{}
	worker := newTestWorker(t, &fakeCalendar{}, mailer, &fakeRecorder{})

	task, err := NewEmailTask(TypeEmailConfirmation, testAppointment())
	if err != nil {
		t.Fatalf("NewEmailTask: %v", err)
	}
	if err := worker.handleEmailConfirmation(context.Background(), task); err != nil {
		t.Fatalf("handleEmailConfirmation: %v", err)
	}
	if len(mailer.confirmations) != 1 {
		t.Fatalf("expected one confirmation email, got %d", len(mailer.confirmations))
	}
}
