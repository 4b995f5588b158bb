package main

import (
	"context"
	"log"
	"os"
	"time"

	"citas-backend/internal/auth"
	"citas-backend/internal/config"
	"citas-backend/internal/db"
	"citas-backend/internal/models"
	"citas-backend/internal/settings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type seedTemplate struct {
	DayOfWeek int
	Start     string
	End       string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Fatal(err)
	}

	// Monday to Friday, morning and afternoon blocks.
	templates := []seedTemplate{
		{DayOfWeek: 1, Start: "09:00", End: "14:00"},
		{DayOfWeek: 1, Start: "16:00", End: "20:00"},
		{DayOfWeek: 2, Start: "09:00", End: "14:00"},
		{DayOfWeek: 2, Start: "16:00", End: "20:00"},
		{DayOfWeek: 3, Start: "09:00", End: "14:00"},
		{DayOfWeek: 3, Start: "16:00", End: "20:00"},
		{DayOfWeek: 4, Start: "09:00", End: "14:00"},
		{DayOfWeek: 4, Start: "16:00", End: "20:00"},
		{DayOfWeek: 5, Start: "09:00", End: "14:00"},
	}

	count, err := cols.AvailabilityTemplates.CountDocuments(ctx, bson.M{})
	if err != nil {
		log.Fatal(err)
	}
	if count == 0 {
		docs := make([]interface{}, 0, len(templates))
		for _, tpl := range templates {
			docs = append(docs, models.AvailabilityTemplate{
				ID:        primitive.NewObjectID().Hex(),
				DayOfWeek: tpl.DayOfWeek,
				Start:     tpl.Start,
				End:       tpl.End,
				IsActive:  true,
			})
		}
		if _, err := cols.AvailabilityTemplates.InsertMany(ctx, docs); err != nil {
			log.Fatalf("seed templates: %v", err)
		}
		log.Printf("seeded %d weekly template blocks", len(docs))
	} else {
		log.Printf("weekly templates present (%d), skipping", count)
	}

	defaults := settings.Defaults()
	settingsUpdate := bson.M{
		"$setOnInsert": bson.M{
			"slotDurationMinutes": defaults.SlotDurationMinutes,
			"sessionPriceCents":   defaults.SessionPriceCents,
			"currency":            defaults.Currency,
			"virtualEnabled":      defaults.VirtualEnabled,
		},
	}
	if _, err := cols.Settings.UpdateOne(ctx, bson.M{"_id": defaults.ID}, settingsUpdate, options.Update().SetUpsert(true)); err != nil {
		log.Fatalf("seed settings: %v", err)
	}

	username := envOrDefault("ADMIN_USER", "admin")
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Printf("seed admin: ADMIN_PASSWORD missing, skipping %s", username)
	} else if err := seedAdminUser(ctx, cols, username, envOrDefault("ADMIN_EMAIL", ""), password, cfg.Timezone); err != nil {
		log.Fatalf("seed admin error for %s: %v", username, err)
	}

	log.Println("seed completed")
}

func seedAdminUser(ctx context.Context, cols *db.Collections, username, email, password string, loc *time.Location) error {
	if username == "" || password == "" {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().In(loc)
	set := bson.M{
		"passwordHash": hash,
		"role":         models.UserRoleAdmin,
		"updatedAt":    now,
	}
	if email != "" {
		set["email"] = email
	}
	setOnInsert := bson.M{
		"_id":       primitive.NewObjectID().Hex(),
		"username":  username,
		"createdAt": now,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": setOnInsert,
	}
	_, err = cols.Users.UpdateOne(ctx, bson.M{"username": username}, update, options.Update().SetUpsert(true))
	return err
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
