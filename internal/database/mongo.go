package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/fitcheckhq/fitcheck/backend/internal/coach"
	"github.com/fitcheckhq/fitcheck/backend/internal/users"
	"github.com/fitcheckhq/fitcheck/backend/internal/workouts"
)

const connectTimeout = 10 * time.Second

// Connect establishes a MongoDB client, verifies connectivity with a ping,
// and returns the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), connectTimeout)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return client.Database(database), nil
}

// Disconnect closes the underlying client of a connected database.
func Disconnect(ctx context.Context, db *mongo.Database) error {
	if db == nil {
		return nil
	}
	return db.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the stores rely on. Index creation is
// idempotent, so this runs on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "referralCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	if _, err := db.Collection(users.CollectionName).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("database: user indexes: %w", err)
	}

	logIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "exerciseName", Value: 1}}},
	}
	if _, err := db.Collection(workouts.CollectionName).Indexes().CreateMany(ctx, logIndexes); err != nil {
		return fmt.Errorf("database: workout indexes: %w", err)
	}

	conversationIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}}},
	}
	if _, err := db.Collection(coach.ConversationCollectionName).Indexes().CreateMany(ctx, conversationIndexes); err != nil {
		return fmt.Errorf("database: conversation indexes: %w", err)
	}

	adviceIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := db.Collection(coach.AdviceCollectionName).Indexes().CreateMany(ctx, adviceIndexes); err != nil {
		return fmt.Errorf("database: advice indexes: %w", err)
	}
	return nil
}
