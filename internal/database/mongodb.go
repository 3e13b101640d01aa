// Package database opens the MongoDB connection shared by the stores.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doctrack/doctrack/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	DocumentsCollection = "documents"
	UsersCollection     = "users"
	SessionsCollection  = "sessions"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// ConnectMongoWithRetry retries ConnectMongo with exponential backoff to
// ride out startup races with the database container.
func ConnectMongoWithRetry(ctx context.Context, uri string, timeout time.Duration, attempts int) (*mongo.Client, error) {
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Second
	var err error
	for i := 1; i <= attempts; i++ {
		var client *mongo.Client
		if client, err = ConnectMongo(ctx, uri, timeout); err == nil {
			return client, nil
		}
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", i, attempts, err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("mongo unavailable after %d attempts: %w", attempts, err)
}
