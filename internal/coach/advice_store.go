package coach

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AdviceCollectionName backs the coach advice documents.
const AdviceCollectionName = "coach_advice"

// MongoAdviceStore implements AdviceStore on a MongoDB collection.
type MongoAdviceStore struct {
	collection *mongo.Collection
}

// NewMongoAdviceStore binds the store to the coach_advice collection.
func NewMongoAdviceStore(db *mongo.Database) *MongoAdviceStore {
	return &MongoAdviceStore{collection: db.Collection(AdviceCollectionName)}
}

func (s *MongoAdviceStore) Insert(ctx context.Context, advice *Advice) error {
	_, err := s.collection.InsertOne(ctx, advice)
	return err
}

func (s *MongoAdviceStore) FindRecent(ctx context.Context, userID, exerciseName string, limit int64) ([]Advice, error) {
	filter := bson.M{"userId": userID}
	if exerciseName != "" {
		filter["exerciseName"] = exerciseName
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var advice []Advice
	if err := cursor.All(ctx, &advice); err != nil {
		return nil, err
	}
	return advice, nil
}
