package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/doctrack/doctrack/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository defines persistence operations for users
type UserRepository interface {
	UpsertBySub(ctx context.Context, u *models.User) (*models.User, error)
	GetBySub(ctx context.Context, sub string) (*models.User, error)
}

// MongoUserRepository implements UserRepository using MongoDB
type MongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository creates a new repository for the given collection
func NewMongoUserRepository(ctx context.Context, col *mongo.Collection) (*MongoUserRepository, error) {
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sub", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &MongoUserRepository{col: col}, nil
}

// UpsertBySub records the user's current profile. Department and role
// follow the identity provider on every login.
func (r *MongoUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"email":      u.Email,
			"name":       u.Name,
			"department": u.Department,
			"role":       u.Role,
			"updatedAt":  now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated models.User
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"sub": u.Sub}, update, opts).Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MongoUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"sub": sub}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: map[string]models.User{}}
}

func (m *MemoryUserRepository) UpsertBySub(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	next := *u
	if cur, ok := m.users[u.Sub]; ok {
		next.ID, next.CreatedAt = cur.ID, cur.CreatedAt
	} else {
		next.ID, next.CreatedAt = u.Sub, now
	}
	next.UpdatedAt = now
	m.users[u.Sub] = next
	return &next, nil
}

func (m *MemoryUserRepository) GetBySub(_ context.Context, sub string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[sub]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
