package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/lib/pq" // postgres driver

	"github.com/studymate/daily-digest/internal/config"
	"github.com/studymate/daily-digest/internal/store"
	"github.com/studymate/daily-digest/internal/store/dynamo"
	"github.com/studymate/daily-digest/internal/store/postgres"
)

// openStore builds the configured backend. The returned func releases its
// resources and is safe to defer.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Backend, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		logger.Info("store: postgres connected")
		return postgres.New(pool), func() { pool.Close() }, nil

	default:
		client, err := openDynamo(ctx, cfg.Credentials)
		if err != nil {
			return nil, nil, fmt.Errorf("dynamodb: %w", err)
		}
		tables := dynamo.TablesForProject(cfg.ProjectID)
		logger.Info("store: dynamodb ready",
			"region", cfg.Credentials.Region,
			"schedules_table", tables.Schedules,
		)
		return dynamo.New(client, tables, logger), func() {}, nil
	}
}

// openDynamo builds a client from the explicit service credentials rather
// than the ambient AWS chain, so one deployment cannot pick up another
// account's role by accident.
func openDynamo(ctx context.Context, creds config.Credentials) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
		}
	}), nil
}

// openDB opens the connection pool and verifies it is reachable.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool. One batch at a time needs very few.
	pool.SetMaxOpenConns(5)
	pool.SetMaxIdleConns(2)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
