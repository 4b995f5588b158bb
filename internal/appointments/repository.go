package appointments

import (
	"context"
	"errors"
	"time"

	"citas-backend/internal/models"
	"citas-backend/internal/schedule"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrSlotTaken surfaces the unique (date,start) index rejecting a second
// active booking for the same slot.
var ErrSlotTaken = errors.New("slot already taken")

// StatusUpdate carries the fields a transition may set. Empty strings are
// left untouched; Status is required.
type StatusUpdate struct {
	Status             string
	CancellationReason string
	CancelledBy        string
	Date               string
	Start              string
	End                string
}

type Repository interface {
	Insert(ctx context.Context, appointment models.Appointment) (models.Appointment, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]models.Appointment, error)
	// Transition applies update only when the appointment currently has one
	// of the from statuses, and returns the updated document. A nil result
	// with a nil error means the precondition did not match.
	Transition(ctx context.Context, id string, from []string, update StatusUpdate) (*models.Appointment, error)
	ReservedIntervals(ctx context.Context, date string, excludeID string) ([]schedule.Interval, error)
	SetExternalEventID(ctx context.Context, id string, eventID string) error
}

// activeStatuses are the statuses that hold a slot. Mirrors the partial
// unique index filter on (date,start).
var activeStatuses = bson.A{
	models.AppointmentStatusPending,
	models.AppointmentStatusConfirmed,
	models.AppointmentStatusCompleted,
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Insert(ctx context.Context, appointment models.Appointment) (models.Appointment, error) {
	if appointment.ID == "" {
		appointment.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, appointment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Appointment{}, ErrSlotTaken
		}
		return models.Appointment{}, err
	}
	return appointment, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&appointment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &appointment, nil
}

func (r *MongoRepository) List(ctx context.Context, filter ListFilter) ([]models.Appointment, error) {
	query := bson.M{}
	if filter.Date != "" {
		query["date"] = filter.Date
	} else if filter.FromDate != "" || filter.ToDate != "" {
		dateRange := bson.M{}
		if filter.FromDate != "" {
			dateRange["$gte"] = filter.FromDate
		}
		if filter.ToDate != "" {
			dateRange["$lte"] = filter.ToDate
		}
		query["date"] = dateRange
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.PatientID != "" {
		query["patientId"] = filter.PatientID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start", Value: 1}}).
		SetSkip(filter.Offset)
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	appointments := make([]models.Appointment, 0)
	if err := cursor.All(ctx, &appointments); err != nil {
		return nil, err
	}
	return appointments, nil
}

func (r *MongoRepository) Transition(ctx context.Context, id string, from []string, update StatusUpdate) (*models.Appointment, error) {
	set := bson.M{
		"status":    update.Status,
		"updatedAt": time.Now().UTC(),
	}
	if update.CancellationReason != "" {
		set["cancellationReason"] = update.CancellationReason
	}
	if update.CancelledBy != "" {
		set["cancelledBy"] = update.CancelledBy
	}
	if update.Date != "" {
		set["date"] = update.Date
		set["start"] = update.Start
		set["end"] = update.End
	}

	fromStatuses := make(bson.A, 0, len(from))
	for _, status := range from {
		fromStatuses = append(fromStatuses, status)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Appointment
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": fromStatuses}},
		bson.M{"$set": set},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return &updated, nil
}

func (r *MongoRepository) ReservedIntervals(ctx context.Context, date string, excludeID string) ([]schedule.Interval, error) {
	query := bson.M{
		"date":   date,
		"status": bson.M{"$in": activeStatuses},
	}
	if excludeID != "" {
		query["_id"] = bson.M{"$ne": excludeID}
	}

	cursor, err := r.col.Find(ctx, query,
		options.Find().SetProjection(bson.M{"start": 1, "end": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	intervals := make([]schedule.Interval, 0)
	for cursor.Next(ctx) {
		var doc struct {
			Start string `bson:"start"`
			End   string `bson:"end"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		interval, err := schedule.ParseInterval(doc.Start, doc.End)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, interval)
	}
	return intervals, cursor.Err()
}

func (r *MongoRepository) SetExternalEventID(ctx context.Context, id string, eventID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"externalEventId": eventID, "updatedAt": time.Now().UTC()}},
	)
	return err
}
