package settings

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"citas-backend/internal/models"
	"citas-backend/internal/schedule"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const bookingSettingsID = "booking"

func Defaults() models.BookingSettings {
	return models.BookingSettings{
		ID:                  bookingSettingsID,
		SlotDurationMinutes: schedule.DefaultSlotMinutes,
		SessionPriceCents:   6000,
		Currency:            "EUR",
		VirtualEnabled:      true,
	}
}

type Repository interface {
	Get(ctx context.Context) (models.BookingSettings, error)
	Save(ctx context.Context, settings models.BookingSettings) (models.BookingSettings, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

// Get reads the singleton booking settings document, falling back to
// defaults when none has been saved yet.
func (r *MongoRepository) Get(ctx context.Context) (models.BookingSettings, error) {
	var settings models.BookingSettings
	err := r.col.FindOne(ctx, bson.M{"_id": bookingSettingsID}).Decode(&settings)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Defaults(), nil
		}
		return models.BookingSettings{}, err
	}
	if settings.SlotDurationMinutes <= 0 {
		settings.SlotDurationMinutes = schedule.DefaultSlotMinutes
	}
	return settings, nil
}

func (r *MongoRepository) Save(ctx context.Context, settings models.BookingSettings) (models.BookingSettings, error) {
	settings.ID = bookingSettingsID
	opts := options.Replace().SetUpsert(true)
	if _, err := r.col.ReplaceOne(ctx, bson.M{"_id": bookingSettingsID}, settings, opts); err != nil {
		return models.BookingSettings{}, err
	}
	return settings, nil
}

// Service caches reads for a short window; booking settings change rarely
// but are consulted on every availability request.
type Service struct {
	repo Repository
	log  *slog.Logger
	ttl  time.Duration

	mu       sync.Mutex
	cached   models.BookingSettings
	cachedAt time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, ttl: 30 * time.Second}
}

func (s *Service) Get(ctx context.Context) (models.BookingSettings, error) {
	s.mu.Lock()
	if !s.cachedAt.IsZero() && time.Since(s.cachedAt) < s.ttl {
		settings := s.cached
		s.mu.Unlock()
		return settings, nil
	}
	s.mu.Unlock()

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return models.BookingSettings{}, err
	}

	s.mu.Lock()
	s.cached = settings
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return settings, nil
}

func (s *Service) Save(ctx context.Context, settings models.BookingSettings) (models.BookingSettings, error) {
	saved, err := s.repo.Save(ctx, settings)
	if err != nil {
		return models.BookingSettings{}, err
	}

	s.mu.Lock()
	s.cached = saved
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return saved, nil
}

// SlotDuration returns the configured slot length, or the standard session
// length when settings cannot be read.
func (s *Service) SlotDuration(ctx context.Context) int {
	settings, err := s.Get(ctx)
	if err != nil {
		s.log.Error("settings: read failed", slog.String("error", err.Error()))
		return schedule.DefaultSlotMinutes
	}
	return settings.SlotDurationMinutes
}
