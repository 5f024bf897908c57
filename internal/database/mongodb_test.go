package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectWithRetryGivesUp(t *testing.T) {
	start := time.Now()
	_, err := ConnectWithRetry(context.Background(), "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50&connectTimeoutMS=50", 200*time.Millisecond, 2, 10*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 attempts")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestConnectWithRetryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectWithRetry(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50", 100*time.Millisecond, 3, time.Second)
	require.Error(t, err)
}

func TestConnectMongoRejectsBadURI(t *testing.T) {
	_, err := ConnectMongo(context.Background(), "not-a-uri", time.Second)
	require.Error(t, err)
}
