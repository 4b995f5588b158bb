package patients

import (
	"context"
	"errors"
	"strings"
	"time"

	"citas-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrEmailTaken = errors.New("patient email already registered")

type Repository interface {
	Create(ctx context.Context, patient models.Patient) (models.Patient, error)
	FindByID(ctx context.Context, id string) (*models.Patient, error)
	FindByEmail(ctx context.Context, email string) (*models.Patient, error)
	Update(ctx context.Context, id string, update UpdateRequest) (*models.Patient, error)
	List(ctx context.Context, search string, limit, offset int64) ([]models.Patient, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, patient models.Patient) (models.Patient, error) {
	if patient.ID == "" {
		patient.ID = primitive.NewObjectID().Hex()
	}
	patient.Email = normalizeEmail(patient.Email)
	patient.CreatedAt = time.Now().UTC()

	if _, err := r.col.InsertOne(ctx, patient); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Patient{}, ErrEmailTaken
		}
		return models.Patient{}, err
	}
	return patient, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	var patient models.Patient
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&patient)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &patient, nil
}

func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (*models.Patient, error) {
	var patient models.Patient
	err := r.col.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&patient)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &patient, nil
}

func (r *MongoRepository) Update(ctx context.Context, id string, update UpdateRequest) (*models.Patient, error) {
	set := bson.M{}
	if update.FullName != "" {
		set["fullName"] = update.FullName
	}
	if update.Phone != "" {
		set["phone"] = update.Phone
	}
	if update.Notes != nil {
		set["notes"] = *update.Notes
	}
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var patient models.Patient
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&patient)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &patient, nil
}

func (r *MongoRepository) List(ctx context.Context, search string, limit, offset int64) ([]models.Patient, error) {
	query := bson.M{}
	if search != "" {
		query["$or"] = bson.A{
			bson.M{"fullName": bson.M{"$regex": search, "$options": "i"}},
			bson.M{"email": bson.M{"$regex": search, "$options": "i"}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "fullName", Value: 1}}).
		SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	patients := make([]models.Patient, 0)
	if err := cursor.All(ctx, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
