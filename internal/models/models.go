package models

import "time"

const (
	SessionVirtual  = "virtual"
	SessionInPerson = "in_person"

	AppointmentStatusPending   = "pending"
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusCompleted = "completed"

	CancelledByPatient      = "patient"
	CancelledByPsychologist = "psychologist"

	UserRoleAdmin = "admin"
)

type Patient struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	FullName  string    `bson:"fullName" json:"fullName"`
	Email     string    `bson:"email" json:"email"`
	Phone     string    `bson:"phone" json:"phone"`
	Notes     string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Appointment holds one booked session. Start/End are wall-clock times on
// Date in the practice timezone; the interval is half-open, so an
// appointment ending at 10:00 does not collide with one starting at 10:00.
// Records are never deleted, only cancelled.
type Appointment struct {
	ID                 string    `bson:"_id,omitempty" json:"id"`
	PatientID          string    `bson:"patientId" json:"patientId"`
	Date               string    `bson:"date" json:"date"`
	Start              string    `bson:"start" json:"start"`
	End                string    `bson:"end" json:"end"`
	Type               string    `bson:"type" json:"type"`
	Status             string    `bson:"status" json:"status"`
	Notes              string    `bson:"notes,omitempty" json:"notes,omitempty"`
	ExternalEventID    string    `bson:"externalEventId,omitempty" json:"externalEventId,omitempty"`
	CancellationReason string    `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`
	CancelledBy        string    `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	CreatedAt          time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time `bson:"updatedAt" json:"updatedAt"`
}

// AvailabilityTemplate is one recurring weekly block. A weekday may carry
// several disjoint blocks (morning and afternoon). The whole set is
// replaced at once by the weekly-schedule replace operation.
type AvailabilityTemplate struct {
	ID        string `bson:"_id,omitempty" json:"id"`
	DayOfWeek int    `bson:"dayOfWeek" json:"dayOfWeek"`
	Start     string `bson:"start" json:"start"`
	End       string `bson:"end" json:"end"`
	IsActive  bool   `bson:"isActive" json:"isActive"`
}

// AvailabilityOverride replaces the weekly template for one date: either
// the date is fully closed, or its block list is used instead of the
// template. There is no merging between the two sources.
type AvailabilityOverride struct {
	Date          string          `bson:"_id" json:"date"`
	IsUnavailable bool            `bson:"isUnavailable" json:"isUnavailable"`
	Blocks        []OverrideBlock `bson:"blocks,omitempty" json:"blocks,omitempty"`
	Reason        string          `bson:"reason,omitempty" json:"reason,omitempty"`
	UpdatedAt     time.Time       `bson:"updatedAt" json:"updatedAt"`
}

type OverrideBlock struct {
	Start string `bson:"start" json:"start"`
	End   string `bson:"end" json:"end"`
}

// TimeSlot is derived on every availability read and never stored.
type TimeSlot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type User struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	Role         string    `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// BookingSettings is the typed configuration the engine reads instead of a
// loose settings blob. Defaults apply when no document has been saved yet.
type BookingSettings struct {
	ID                  string `bson:"_id,omitempty" json:"-"`
	SlotDurationMinutes int    `bson:"slotDurationMinutes" json:"slotDurationMinutes"`
	SessionPriceCents   int    `bson:"sessionPriceCents" json:"sessionPriceCents"`
	Currency            string `bson:"currency" json:"currency"`
	VirtualEnabled      bool   `bson:"virtualEnabled" json:"virtualEnabled"`
}
