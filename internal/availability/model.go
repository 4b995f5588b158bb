package availability

type TemplateEntry struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"gte=0,lte=6"`
	Start     string `json:"start" validate:"required,clock"`
	End       string `json:"end" validate:"required,clock"`
	IsActive  *bool  `json:"isActive"`
}

// ReplaceTemplatesRequest swaps the whole weekly schedule in one call.
type ReplaceTemplatesRequest struct {
	Entries []TemplateEntry `json:"entries" validate:"required,dive"`
}

type OverrideBlockRequest struct {
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

type UpsertOverrideRequest struct {
	IsUnavailable bool                   `json:"isUnavailable"`
	Blocks        []OverrideBlockRequest `json:"blocks" validate:"omitempty,dive"`
	Reason        string                 `json:"reason"`
}

type RangeRequest struct {
	StartDate string `json:"startDate" validate:"required,date"`
	EndDate   string `json:"endDate" validate:"required,date"`
	Reason    string `json:"reason"`
}
