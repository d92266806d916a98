package session

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "sessions"

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(collectionName),
	}
}

// EnsureIndexes creates the unique session_id index and the per-user index.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("session_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("user_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

func (r *MongoStore) Insert(ctx context.Context, s *Session) error {
	if err := checkIDs(s); err != nil {
		return err
	}

	_, err := r.collection.InsertOne(ctx, s.Record())
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *MongoStore) FindOne(ctx context.Context, f Filter) (*Session, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	var rec Record
	err := r.collection.FindOne(ctx, mongoFilter(f)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	return rec.Session()
}

func (r *MongoStore) UpdateOne(ctx context.Context, f Filter, p Patch) (bool, error) {
	if err := f.validate(); err != nil {
		return false, err
	}
	if p.empty() {
		return false, errors.New("empty patch")
	}

	res, err := r.collection.UpdateOne(ctx, mongoFilter(f), bson.M{"$set": mongoSet(p)})
	if err != nil {
		return false, fmt.Errorf("failed to update session: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func mongoFilter(f Filter) bson.M {
	m := bson.M{
		"session_id": f.SessionID,
		"user_id":    f.UserID,
	}
	if f.Blocked != nil {
		m["blocked"] = *f.Blocked
	}
	if f.EmergencyUsed != nil {
		m["emergency_used"] = *f.EmergencyUsed
	}
	if f.EndTime != nil {
		m["end_time"] = FormatTime(*f.EndTime)
	}
	return m
}

func mongoSet(p Patch) bson.M {
	set := bson.M{}
	if p.EndTime != nil {
		set["end_time"] = FormatTime(*p.EndTime)
	}
	if p.Blocked != nil {
		set["blocked"] = *p.Blocked
	}
	if p.EmergencyUsed != nil {
		set["emergency_used"] = *p.EmergencyUsed
	}
	if p.Active != nil {
		set["active"] = *p.Active
	}
	return set
}
