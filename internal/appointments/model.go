package appointments

// CreateRequest is the public booking payload. The patient must already
// exist; the portal creates or finds the patient record first.
type CreateRequest struct {
	PatientID string `json:"patientId" validate:"required"`
	Date      string `json:"date" validate:"required,date"`
	Start     string `json:"start" validate:"required,clock"`
	End       string `json:"end" validate:"required,clock"`
	Type      string `json:"type" validate:"required,oneof=virtual in_person"`
	Notes     string `json:"notes" validate:"omitempty,max=2000"`
}

// AdminCreateRequest additionally lets the practitioner book directly into
// confirmed or hold a slot as pending.
type AdminCreateRequest struct {
	CreateRequest
	Status string `json:"status" validate:"omitempty,oneof=pending confirmed"`
}

type CancelRequest struct {
	Reason      string `json:"reason" validate:"omitempty,max=2000"`
	CancelledBy string `json:"cancelledBy" validate:"omitempty,oneof=patient psychologist"`
}

type RescheduleRequest struct {
	Date  string `json:"date" validate:"required,date"`
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

// ListFilter narrows the admin listing. Zero values mean no constraint.
type ListFilter struct {
	Date      string
	FromDate  string
	ToDate    string
	Status    string
	PatientID string
	Limit     int64
	Offset    int64
}
