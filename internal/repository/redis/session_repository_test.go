package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"data-explorer-be/pkg/store"
	"data-explorer-be/pkg/store/storetest"
)

// Set REDIS_URL (e.g. redis://localhost:6379/15) to run against a live server.
func TestSessionRepository_Contract(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping: REDIS_URL not set")
	}

	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	storetest.Run(t, func(t *testing.T) store.SessionStore {
		return NewSessionRepository(client, time.Minute)
	})
}
