package database

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/noah-isme/school-site-api/pkg/config"
)

// ErrMongoNotConfigured is returned when no URI is available.
var ErrMongoNotConfigured = errors.New("mongo uri not configured")

type mongoConnector func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error)

// MongoPool owns the single MongoDB client of the process.
// The client is created on first Acquire and reused afterwards; a failed
// connect is not cached so the next caller retries.
type MongoPool struct {
	cfg     config.MongoConfig
	connect mongoConnector

	mu     sync.Mutex
	client *mongo.Client
}

// NewMongoPool constructs a pool without dialing.
func NewMongoPool(cfg config.MongoConfig) *MongoPool {
	return &MongoPool{cfg: cfg, connect: func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	}}
}

// Acquire returns the configured database, connecting lazily.
func (p *MongoPool) Acquire(ctx context.Context) (*mongo.Database, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		if p.cfg.URI == "" {
			return nil, ErrMongoNotConfigured
		}
		opts := options.Client().ApplyURI(p.cfg.URI)
		if p.cfg.ConnectTimeout > 0 {
			opts.SetConnectTimeout(p.cfg.ConnectTimeout).SetServerSelectionTimeout(p.cfg.ConnectTimeout)
		}
		client, err := p.connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		p.client = client
	}

	return p.client.Database(p.cfg.Database), nil
}

// Collection is a shortcut for Acquire followed by Database.Collection.
func (p *MongoPool) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Ping verifies the primary is reachable.
func (p *MongoPool) Ping(ctx context.Context) error {
	db, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	return db.Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client if one was created.
func (p *MongoPool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}
	err := p.client.Disconnect(ctx)
	p.client = nil
	return err
}
