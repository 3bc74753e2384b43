package users

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CollectionName backs the user documents.
const CollectionName = "users"

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore binds the store to the users collection of the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(CollectionName)}
}

func (s *MongoStore) Insert(ctx context.Context, user *User) error {
	_, err := s.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoStore) FindByReferralCode(ctx context.Context, code string) (*User, error) {
	return s.findOne(ctx, bson.M{"referralCode": code})
}

func (s *MongoStore) UpdateProfile(ctx context.Context, id string, goal FitnessGoal, level ActivityLevel, updatedAt time.Time) error {
	update := bson.M{"$set": bson.M{
		"fitnessGoal":   goal,
		"activityLevel": level,
		"updatedAt":     updatedAt,
	}}
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFirstWorkoutLogged performs a single-document compare-and-set on the
// firstWorkoutLogged flag. The filter only matches while the flag is unset, so
// concurrent callers cannot both observe the transition.
func (s *MongoStore) MarkFirstWorkoutLogged(ctx context.Context, id string) (bool, error) {
	filter := bson.M{"_id": id, "firstWorkoutLogged": false}
	update := bson.M{"$set": bson.M{"firstWorkoutLogged": true}}
	result := s.collection.FindOneAndUpdate(ctx, filter, update)
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GrantReferralReward flips the reward flag on the referred user, matching only
// documents with a recorded referrer and an unset flag.
func (s *MongoStore) GrantReferralReward(ctx context.Context, referredUserID string) (string, bool, error) {
	filter := bson.M{
		"_id":                   referredUserID,
		"referralRewardGranted": false,
		"referredBy":            bson.M{"$exists": true, "$ne": ""},
	}
	update := bson.M{"$set": bson.M{"referralRewardGranted": true}}
	result := s.collection.FindOneAndUpdate(ctx, filter, update)
	var referred User
	if err := result.Decode(&referred); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, err
	}
	return referred.ReferredBy, true, nil
}

func (s *MongoStore) IncrementSuccessfulReferrals(ctx context.Context, referrerID string) error {
	update := bson.M{"$inc": bson.M{"successfulReferrals": 1}}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": referrerID}, update)
	return err
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	err := s.collection.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
