package workouts

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName backs the workout log documents.
const CollectionName = "workout_logs"

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore binds the store to the workout_logs collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(CollectionName)}
}

func (s *MongoStore) Insert(ctx context.Context, log *Log) error {
	_, err := s.collection.InsertOne(ctx, log)
	return err
}

func (s *MongoStore) FindByID(ctx context.Context, userID, id string) (*Log, error) {
	var log Log
	err := s.collection.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&log)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (s *MongoStore) FindInRange(ctx context.Context, userID string, from, to time.Time) ([]Log, error) {
	filter := bson.M{
		"userId":    userID,
		"createdAt": bson.M{"$gte": from, "$lte": to},
	}
	return s.find(ctx, filter, 0)
}

func (s *MongoStore) List(ctx context.Context, userID string, limit int64) ([]Log, error) {
	return s.find(ctx, bson.M{"userId": userID}, limit)
}

func (s *MongoStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ExerciseNamesInRange(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	filter := bson.M{
		"userId":    userID,
		"createdAt": bson.M{"$gte": from, "$lte": to},
	}
	values, err := s.collection.Distinct(ctx, "exerciseName", filter)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for _, value := range values {
		if name, ok := value.(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, limit int64) ([]Log, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []Log
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
