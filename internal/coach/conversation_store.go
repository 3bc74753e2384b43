package coach

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationCollectionName backs the conversation documents.
const ConversationCollectionName = "conversations"

// MongoConversationStore implements ConversationStore on a MongoDB collection.
type MongoConversationStore struct {
	collection *mongo.Collection
}

// NewMongoConversationStore binds the store to the conversations collection.
func NewMongoConversationStore(db *mongo.Database) *MongoConversationStore {
	return &MongoConversationStore{collection: db.Collection(ConversationCollectionName)}
}

func (s *MongoConversationStore) Insert(ctx context.Context, conversation *Conversation) error {
	_, err := s.collection.InsertOne(ctx, conversation)
	return err
}

func (s *MongoConversationStore) FindByID(ctx context.Context, userID, id string) (*Conversation, error) {
	var conversation Conversation
	err := s.collection.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&conversation)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// AppendMessages pushes onto the message array. The array is never sliced
// down; the weekly quota counts user messages from it.
func (s *MongoConversationStore) AppendMessages(ctx context.Context, userID, id string, messages []Message, updatedAt time.Time) error {
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": messages}},
		"$set":  bson.M{"updatedAt": updatedAt},
	}
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id, "userId": userID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *MongoConversationStore) List(ctx context.Context, userID string) ([]Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetProjection(bson.M{"messages": bson.M{"$slice": -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conversations []Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (s *MongoConversationStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// CountUserMessagesBetween counts user-role messages across the user's
// conversations with createdAt in [from, to].
func (s *MongoConversationStore) CountUserMessagesBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"userId": userID}}},
		bson.D{{Key: "$unwind", Value: "$messages"}},
		bson.D{{Key: "$match", Value: bson.M{
			"messages.role":      RoleUser,
			"messages.createdAt": bson.M{"$gte": from, "$lte": to},
		}}},
		bson.D{{Key: "$count", Value: "total"}},
	}
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}
