package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/school-site-api/pkg/config"
)

func TestMongoPoolAcquireIsIdempotent(t *testing.T) {
	pool := NewMongoPool(config.MongoConfig{URI: "mongodb://127.0.0.1:27017", Database: "school_site", ConnectTimeout: time.Second})
	var calls int32
	pool.connect = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		atomic.AddInt32(&calls, 1)
		return mongo.Connect(ctx, opts)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := pool.Acquire(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "school_site", db.Name())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.NoError(t, pool.Close(context.Background()))
}

func TestMongoPoolRetriesAfterFailure(t *testing.T) {
	pool := NewMongoPool(config.MongoConfig{URI: "mongodb://127.0.0.1:27017", Database: "school_site"})
	attempts := 0
	pool.connect = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("dial failed")
		}
		return mongo.Connect(ctx, opts)
	}

	_, err := pool.Acquire(context.Background())
	require.Error(t, err)

	coll, err := pool.Collection(context.Background(), "contacts")
	require.NoError(t, err)
	assert.Equal(t, "contacts", coll.Name())
	assert.Equal(t, 2, attempts)
	require.NoError(t, pool.Close(context.Background()))
}

func TestMongoPoolRequiresURI(t *testing.T) {
	pool := NewMongoPool(config.MongoConfig{})
	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrMongoNotConfigured)
	assert.NoError(t, pool.Close(context.Background()))
}

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "secret", Name: "school_site", SSLMode: "disable"}
}
