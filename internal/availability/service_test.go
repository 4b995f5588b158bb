package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"citas-backend/internal/models"
	"citas-backend/internal/schedule"
)

type fakeRepository struct {
	templates []models.AvailabilityTemplate
	overrides map[string]models.AvailabilityOverride
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{overrides: make(map[string]models.AvailabilityOverride)}
}

func (f *fakeRepository) ListTemplates(ctx context.Context) ([]models.AvailabilityTemplate, error) {
	return f.templates, nil
}

func (f *fakeRepository) ReplaceTemplates(ctx context.Context, entries []models.AvailabilityTemplate) error {
	f.templates = entries
	return nil
}

func (f *fakeRepository) GetOverride(ctx context.Context, date string) (*models.AvailabilityOverride, error) {
	override, ok := f.overrides[date]
	if !ok {
		return nil, nil
	}
	return &override, nil
}

func (f *fakeRepository) UpsertOverride(ctx context.Context, override models.AvailabilityOverride) error {
	f.overrides[override.Date] = override
	return nil
}

func (f *fakeRepository) DeleteOverride(ctx context.Context, date string) (bool, error) {
	if _, ok := f.overrides[date]; !ok {
		return false, nil
	}
	delete(f.overrides, date)
	return true, nil
}

func (f *fakeRepository) DeleteOverridesInRange(ctx context.Context, startDate, endDate string) (int64, error) {
	var deleted int64
	for date := range f.overrides {
		if date >= startDate && date <= endDate {
			delete(f.overrides, date)
			deleted++
		}
	}
	return deleted, nil
}

type fakeBookings struct {
	byDate map[string][]schedule.Interval
}

func (f *fakeBookings) ReservedIntervals(ctx context.Context, date string) ([]schedule.Interval, error) {
	return f.byDate[date], nil
}

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// 2026-03-02 is a Monday.
const (
	mondayToday  = "2026-03-02"
	mondayFuture = "2026-03-09"
	sundayPast   = "2026-03-01"
)

func mondayTemplates() []models.AvailabilityTemplate {
	return []models.AvailabilityTemplate{
		{ID: "t1", DayOfWeek: 1, Start: "09:00", End: "17:00", IsActive: true},
		{ID: "t2", DayOfWeek: 2, Start: "09:00", End: "13:00", IsActive: true},
		{ID: "t3", DayOfWeek: 1, Start: "18:00", End: "20:00", IsActive: false},
	}
}

func TestWindowsForUsesActiveTemplatesForWeekday(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = mondayTemplates()
	svc := NewService(repo, &fakeBookings{}, testLocation(t))

	windows, err := svc.WindowsFor(context.Background(), mondayFuture)
	if err != nil {
		t.Fatalf("WindowsFor: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if windows[0].Start != "09:00" || windows[0].End != "17:00" {
		t.Fatalf("unexpected window %v", windows[0])
	}
}

func TestWindowsForUnavailableOverrideClosesDate(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = mondayTemplates()
	repo.overrides[mondayFuture] = models.AvailabilityOverride{
		Date:          mondayFuture,
		IsUnavailable: true,
		Reason:        "vacaciones",
	}
	svc := NewService(repo, &fakeBookings{}, testLocation(t))

	windows, err := svc.WindowsFor(context.Background(), mondayFuture)
	if err != nil {
		t.Fatalf("WindowsFor: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("expected closed date, got %d windows", len(windows))
	}

	slots, err := svc.SlotsFor(context.Background(), mondayFuture, 60, time.Date(2026, 3, 2, 10, 30, 0, 0, testLocation(t)))
	if err != nil {
		t.Fatalf("SlotsFor: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on closed date, got %d", len(slots))
	}
}

func TestWindowsForBlockOverrideReplacesTemplate(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = mondayTemplates()
	repo.overrides[mondayFuture] = models.AvailabilityOverride{
		Date: mondayFuture,
		Blocks: []models.OverrideBlock{
			{Start: "15:00", End: "18:00"},
			{Start: "10:00", End: "12:00"},
		},
	}
	svc := NewService(repo, &fakeBookings{}, testLocation(t))

	windows, err := svc.WindowsFor(context.Background(), mondayFuture)
	if err != nil {
		t.Fatalf("WindowsFor: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].Start != "10:00" || windows[1].Start != "15:00" {
		t.Fatalf("windows not sorted: %v", windows)
	}
}

func TestSlotsForFlagsBookedIntervals(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = mondayTemplates()
	booked := &fakeBookings{byDate: map[string][]schedule.Interval{
		mondayFuture: {{Start: 600, End: 660}}, // 10:00-11:00
	}}
	svc := NewService(repo, booked, testLocation(t))

	now := time.Date(2026, 3, 2, 10, 30, 0, 0, testLocation(t))
	slots, err := svc.SlotsFor(context.Background(), mondayFuture, 60, now)
	if err != nil {
		t.Fatalf("SlotsFor: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}

	byStart := make(map[string]models.TimeSlot, len(slots))
	for _, slot := range slots {
		byStart[slot.Start] = slot
	}
	if !byStart["09:00"].Available {
		t.Error("09:00 should be available before the booked interval")
	}
	if byStart["10:00"].Available {
		t.Error("10:00 should be flagged unavailable")
	}
	for _, start := range []string{"11:00", "12:00", "13:00", "14:00", "15:00", "16:00"} {
		if !byStart[start].Available {
			t.Errorf("%s should be available", start)
		}
	}
	if last := slots[len(slots)-1]; last.End != "17:00" {
		t.Errorf("last slot should end at the window boundary, got %s", last.End)
	}
}

func TestSlotsForExcludesPastStartsToday(t *testing.T) {
	repo := newFakeRepository()
	repo.overrides[mondayToday] = models.AvailabilityOverride{
		Date:   mondayToday,
		Blocks: []models.OverrideBlock{{Start: "09:00", End: "12:00"}},
	}
	svc := NewService(repo, &fakeBookings{}, testLocation(t))

	now := time.Date(2026, 3, 2, 10, 30, 0, 0, testLocation(t))
	slots, err := svc.SlotsFor(context.Background(), mondayToday, 60, now)
	if err != nil {
		t.Fatalf("SlotsFor: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected only the 11:00 slot, got %d slots", len(slots))
	}
	if slots[0].Start != "11:00" {
		t.Fatalf("expected 11:00, got %s", slots[0].Start)
	}
}

func TestSlotsForPastDateIsEmpty(t *testing.T) {
	repo := newFakeRepository()
	repo.overrides[sundayPast] = models.AvailabilityOverride{
		Date:   sundayPast,
		Blocks: []models.OverrideBlock{{Start: "09:00", End: "17:00"}},
	}
	svc := NewService(repo, &fakeBookings{}, testLocation(t))

	now := time.Date(2026, 3, 2, 10, 30, 0, 0, testLocation(t))
	slots, err := svc.SlotsFor(context.Background(), sundayPast, 60, now)
	if err != nil {
		t.Fatalf("SlotsFor: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a past date, got %d", len(slots))
	}
}

func TestSlotsForRejectsInvalidDuration(t *testing.T) {
	svc := NewService(newFakeRepository(), &fakeBookings{}, testLocation(t))
	if _, err := svc.SlotsFor(context.Background(), mondayFuture, 0, time.Now()); !errors.Is(err, schedule.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestReplaceTemplatesRejectsInvertedBlock(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, &fakeBookings{}, testLocation(t))

	_, err := svc.ReplaceTemplates(context.Background(), ReplaceTemplatesRequest{
		Entries: []TemplateEntry{{DayOfWeek: 1, Start: "17:00", End: "09:00"}},
	})
	if !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("expected ErrInvalidBlock, got %v", err)
	}
	if len(repo.templates) != 0 {
		t.Fatal("templates should not be written on validation failure")
	}
}

func TestUpsertOverrideRequiresBlocksWhenOpen(t *testing.T) {
	svc := NewService(newFakeRepository(), &fakeBookings{}, testLocation(t))

	_, err := svc.UpsertOverride(context.Background(), mondayFuture, UpsertOverrideRequest{
		IsUnavailable: false,
		Blocks:        nil,
	})
	if !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("expected ErrInvalidBlock, got %v", err)
	}
}

func TestBlockAndUnblockRange(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, &fakeBookings{}, testLocation(t))

	blocked, err := svc.BlockRange(context.Background(), RangeRequest{
		StartDate: "2026-03-09",
		EndDate:   "2026-03-11",
		Reason:    "congreso",
	})
	if err != nil {
		t.Fatalf("BlockRange: %v", err)
	}
	if blocked != 3 {
		t.Fatalf("expected 3 blocked dates, got %d", blocked)
	}
	for _, date := range []string{"2026-03-09", "2026-03-10", "2026-03-11"} {
		override, ok := repo.overrides[date]
		if !ok || !override.IsUnavailable {
			t.Fatalf("expected unavailable override for %s", date)
		}
	}

	deleted, err := svc.UnblockRange(context.Background(), RangeRequest{
		StartDate: "2026-03-09",
		EndDate:   "2026-03-10",
	})
	if err != nil {
		t.Fatalf("UnblockRange: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted overrides, got %d", deleted)
	}
	if _, ok := repo.overrides["2026-03-11"]; !ok {
		t.Fatal("override outside the range should remain")
	}
}

func TestBlockRangeRejectsInvertedRange(t *testing.T) {
	svc := NewService(newFakeRepository(), &fakeBookings{}, testLocation(t))
	if _, err := svc.BlockRange(context.Background(), RangeRequest{StartDate: "2026-03-11", EndDate: "2026-03-09"}); !errors.Is(err, schedule.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}
