package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/doctrack/doctrack/internal/config"
	"github.com/doctrack/doctrack/internal/database"
	"github.com/doctrack/doctrack/internal/document/repository"
	"github.com/doctrack/doctrack/pkg/logger"
	"github.com/fatih/color"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	root := newRootCmd(openMongo, os.Stdout)
	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openMongo connects to the document collection named by the service
// configuration.
func openMongo(ctx context.Context) (repository.Repository, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.MongoDB.URI == "" {
		return nil, nil, errors.New("MONGODB_URI is required")
	}
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}
	repo, err := repository.NewMongoRepo(ctx, client.Database(cfg.MongoDB.Database).Collection(database.DocumentsCollection))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return repo, closeFn, nil
}
