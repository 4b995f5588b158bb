package availability

import (
	"context"
	"errors"
	"sort"
	"time"

	"citas-backend/internal/models"
	"citas-backend/internal/schedule"
)

var ErrInvalidBlock = errors.New("invalid availability block")

// AppointmentSource exposes the booked intervals of a date so slots can be
// flagged without this package depending on the lifecycle service.
type AppointmentSource interface {
	ReservedIntervals(ctx context.Context, date string) ([]schedule.Interval, error)
}

type Service struct {
	repo     Repository
	booked   AppointmentSource
	location *time.Location
}

func NewService(repo Repository, booked AppointmentSource, location *time.Location) *Service {
	return &Service{
		repo:     repo,
		booked:   booked,
		location: location,
	}
}

// WindowsFor resolves the open windows of a date. A date override wins
// outright: an unavailable override closes the date, a block override
// replaces the weekly template. Only with no override do the active
// templates for the weekday apply. Absence of data is a valid empty result.
func (s *Service) WindowsFor(ctx context.Context, date string) ([]schedule.Window, error) {
	day, err := schedule.ParseDate(date, s.location)
	if err != nil {
		return nil, err
	}

	override, err := s.repo.GetOverride(ctx, date)
	if err != nil {
		return nil, err
	}
	if override != nil {
		if override.IsUnavailable {
			return []schedule.Window{}, nil
		}
		windows := make([]schedule.Window, 0, len(override.Blocks))
		for _, block := range override.Blocks {
			windows = append(windows, schedule.Window{Start: block.Start, End: block.End})
		}
		sortWindows(windows)
		return windows, nil
	}

	templates, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	weekday := int(day.Weekday())
	windows := make([]schedule.Window, 0)
	for _, tpl := range templates {
		if !tpl.IsActive || tpl.DayOfWeek != weekday {
			continue
		}
		windows = append(windows, schedule.Window{Start: tpl.Start, End: tpl.End})
	}
	sortWindows(windows)
	return windows, nil
}

// SlotsFor discretizes the date's windows into candidate slots of the given
// duration, drops slots starting before now, and flags the rest against the
// booked intervals. Unavailable slots are returned, not omitted, so callers
// can render them disabled.
func (s *Service) SlotsFor(ctx context.Context, date string, duration int, now time.Time) ([]models.TimeSlot, error) {
	if duration <= 0 {
		return nil, schedule.ErrInvalidDuration
	}

	windows, err := s.WindowsFor(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []models.TimeSlot{}, nil
	}

	reserved, err := s.booked.ReservedIntervals(ctx, date)
	if err != nil {
		return nil, err
	}

	day, err := schedule.ParseDate(date, s.location)
	if err != nil {
		return nil, err
	}
	localNow := now.In(s.location)
	startToday := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, s.location)

	// -1 keeps every slot on future dates; past dates yield nothing.
	nowCutoff := -1
	if day.Before(startToday) {
		return []models.TimeSlot{}, nil
	}
	if day.Equal(startToday) {
		nowCutoff = localNow.Hour()*60 + localNow.Minute()
	}

	slots := make([]models.TimeSlot, 0)
	for _, window := range windows {
		candidates, err := schedule.SlotsInWindow(window, duration)
		if err != nil {
			return nil, err
		}
		for _, candidate := range candidates {
			if candidate.Start < nowCutoff {
				continue
			}
			slots = append(slots, models.TimeSlot{
				Start:     schedule.MinutesToClock(candidate.Start),
				End:       schedule.MinutesToClock(candidate.End),
				Available: !schedule.OverlapsAny(candidate, reserved),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]models.AvailabilityTemplate, error) {
	return s.repo.ListTemplates(ctx)
}

// ReplaceTemplates swaps the weekly schedule wholesale. Blocks within the
// request are validated for well-ordered clocks; overlap between blocks is
// deliberately not checked here.
func (s *Service) ReplaceTemplates(ctx context.Context, req ReplaceTemplatesRequest) ([]models.AvailabilityTemplate, error) {
	entries := make([]models.AvailabilityTemplate, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if _, err := schedule.ParseInterval(entry.Start, entry.End); err != nil {
			return nil, ErrInvalidBlock
		}
		isActive := true
		if entry.IsActive != nil {
			isActive = *entry.IsActive
		}
		entries = append(entries, models.AvailabilityTemplate{
			DayOfWeek: entry.DayOfWeek,
			Start:     entry.Start,
			End:       entry.End,
			IsActive:  isActive,
		})
	}

	if err := s.repo.ReplaceTemplates(ctx, entries); err != nil {
		return nil, err
	}
	return s.repo.ListTemplates(ctx)
}

func (s *Service) UpsertOverride(ctx context.Context, date string, req UpsertOverrideRequest) (models.AvailabilityOverride, error) {
	if _, err := schedule.ParseDate(date, s.location); err != nil {
		return models.AvailabilityOverride{}, err
	}
	if !req.IsUnavailable && len(req.Blocks) == 0 {
		return models.AvailabilityOverride{}, ErrInvalidBlock
	}

	blocks := make([]models.OverrideBlock, 0, len(req.Blocks))
	if !req.IsUnavailable {
		for _, block := range req.Blocks {
			if _, err := schedule.ParseInterval(block.Start, block.End); err != nil {
				return models.AvailabilityOverride{}, ErrInvalidBlock
			}
			blocks = append(blocks, models.OverrideBlock{Start: block.Start, End: block.End})
		}
	}

	override := models.AvailabilityOverride{
		Date:          date,
		IsUnavailable: req.IsUnavailable,
		Blocks:        blocks,
		Reason:        req.Reason,
		UpdatedAt:     time.Now().In(s.location),
	}
	if err := s.repo.UpsertOverride(ctx, override); err != nil {
		return models.AvailabilityOverride{}, err
	}
	return override, nil
}

func (s *Service) DeleteOverride(ctx context.Context, date string) (bool, error) {
	if _, err := schedule.ParseDate(date, s.location); err != nil {
		return false, err
	}
	return s.repo.DeleteOverride(ctx, date)
}

// BlockRange writes an unavailable override for every date in the inclusive
// range, closing those dates regardless of template content.
func (s *Service) BlockRange(ctx context.Context, req RangeRequest) (int, error) {
	dates, err := s.datesInRange(req.StartDate, req.EndDate)
	if err != nil {
		return 0, err
	}

	now := time.Now().In(s.location)
	for _, date := range dates {
		override := models.AvailabilityOverride{
			Date:          date,
			IsUnavailable: true,
			Reason:        req.Reason,
			UpdatedAt:     now,
		}
		if err := s.repo.UpsertOverride(ctx, override); err != nil {
			return 0, err
		}
	}
	return len(dates), nil
}

// UnblockRange deletes every override in the inclusive range, restoring
// template-driven availability for those dates.
func (s *Service) UnblockRange(ctx context.Context, req RangeRequest) (int64, error) {
	if _, err := s.datesInRange(req.StartDate, req.EndDate); err != nil {
		return 0, err
	}
	return s.repo.DeleteOverridesInRange(ctx, req.StartDate, req.EndDate)
}

const maxRangeDays = 366

func (s *Service) datesInRange(startDate, endDate string) ([]string, error) {
	start, err := schedule.ParseDate(startDate, s.location)
	if err != nil {
		return nil, err
	}
	end, err := schedule.ParseDate(endDate, s.location)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, schedule.ErrInvalidWindow
	}

	dates := make([]string, 0)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if len(dates) >= maxRangeDays {
			return nil, schedule.ErrInvalidWindow
		}
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates, nil
}

func sortWindows(windows []schedule.Window) {
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })
}
