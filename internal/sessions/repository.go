package sessions

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository stores the generation counter and current session per user.
// The counter never goes backwards, even after the session itself expired
// or ended.
type Repository interface {
	// Bump atomically increments the user's generation, stores s under it
	// and returns the new generation.
	Bump(ctx context.Context, s *Session) (int64, error)
	// Current returns the latest session for userID. The returned value
	// carries the current generation even when the login itself is gone
	// (empty Token). It is nil when the user never logged in.
	Current(ctx context.Context, userID string) (*Session, error)
	// End clears the login if generation is still current.
	End(ctx context.Context, userID string, generation int64) (bool, error)
}

// MongoRepository keeps one document per user. Ending a session clears
// the token but leaves the generation in place.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Bump(ctx context.Context, s *Session) (int64, error) {
	update := bson.M{
		"$inc": bson.M{"generation": 1},
		"$set": bson.M{"token": s.Token, "startedAt": s.StartedAt, "expiresAt": s.ExpiresAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out Session
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": s.UserID}, update, opts).Decode(&out); err != nil {
		return 0, err
	}
	return out.Generation, nil
}

func (r *MongoRepository) Current(ctx context.Context, userID string) (*Session, error) {
	var s Session
	if err := r.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) End(ctx context.Context, userID string, generation int64) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": userID, "generation": generation, "token": bson.M{"$ne": ""}},
		bson.M{"$set": bson.M{"token": "", "expiresAt": time.Time{}}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
