package availability

import (
	"context"

	"citas-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	ListTemplates(ctx context.Context) ([]models.AvailabilityTemplate, error)
	ReplaceTemplates(ctx context.Context, entries []models.AvailabilityTemplate) error
	GetOverride(ctx context.Context, date string) (*models.AvailabilityOverride, error)
	UpsertOverride(ctx context.Context, override models.AvailabilityOverride) error
	DeleteOverride(ctx context.Context, date string) (bool, error)
	DeleteOverridesInRange(ctx context.Context, startDate, endDate string) (int64, error)
}

type MongoRepository struct {
	templates *mongo.Collection
	overrides *mongo.Collection
}

func NewRepository(templates, overrides *mongo.Collection) *MongoRepository {
	return &MongoRepository{templates: templates, overrides: overrides}
}

func (r *MongoRepository) ListTemplates(ctx context.Context) ([]models.AvailabilityTemplate, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "dayOfWeek", Value: 1},
		{Key: "start", Value: 1},
	})

	cursor, err := r.templates.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.AvailabilityTemplate, 0)
	for cursor.Next(ctx) {
		var tpl models.AvailabilityTemplate
		if err := cursor.Decode(&tpl); err != nil {
			return nil, err
		}
		items = append(items, tpl)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) ReplaceTemplates(ctx context.Context, entries []models.AvailabilityTemplate) error {
	if _, err := r.templates.DeleteMany(ctx, bson.M{}); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = primitive.NewObjectID().Hex()
		}
		docs = append(docs, entry)
	}
	_, err := r.templates.InsertMany(ctx, docs)
	return err
}

func (r *MongoRepository) GetOverride(ctx context.Context, date string) (*models.AvailabilityOverride, error) {
	var override models.AvailabilityOverride
	err := r.overrides.FindOne(ctx, bson.M{"_id": date}).Decode(&override)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &override, nil
}

func (r *MongoRepository) UpsertOverride(ctx context.Context, override models.AvailabilityOverride) error {
	update := bson.M{"$set": bson.M{
		"isUnavailable": override.IsUnavailable,
		"blocks":        override.Blocks,
		"reason":        override.Reason,
		"updatedAt":     override.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := r.overrides.UpdateOne(ctx, bson.M{"_id": override.Date}, update, opts)
	return err
}

func (r *MongoRepository) DeleteOverride(ctx context.Context, date string) (bool, error) {
	res, err := r.overrides.DeleteOne(ctx, bson.M{"_id": date})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoRepository) DeleteOverridesInRange(ctx context.Context, startDate, endDate string) (int64, error) {
	res, err := r.overrides.DeleteMany(ctx, bson.M{
		"_id": bson.M{"$gte": startDate, "$lte": endDate},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
