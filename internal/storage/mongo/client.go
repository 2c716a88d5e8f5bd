package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Client wraps the MongoDB client and database handle shared by all
// components in the process. The driver's pool handles concurrent reads and
// writes; no locking happens at this layer.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	timeout  time.Duration
}

// NewClient connects to MongoDB and verifies the connection with a ping.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client:   client,
		database: client.Database(cfg.Database),
		timeout:  cfg.Timeout,
	}, nil
}

// Collection returns a handle to a named collection.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Ping verifies the connection is alive. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	return c.client.Disconnect(ctx)
}
