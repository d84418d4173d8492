package redisjti_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/apgms/apgms/internal/adapters/cache/redisjti"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server when APGMS_TEST_REDIS_URL is set.
func TestRegistry(t *testing.T) {
	url := os.Getenv("APGMS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("APGMS_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := redisjti.NewClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	reg := redisjti.New(client, redisjti.WithPrefix("apgms:test:"+uuid.NewString()+":"))
	nonce := uuid.NewString()
	exp := time.Now().Add(time.Minute)

	ok, err := reg.Consume(ctx, nonce, exp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Consume(ctx, nonce, exp)
	require.NoError(t, err)
	assert.False(t, ok, "second consume is a replay")

	require.NoError(t, reg.Release(ctx, nonce))
	ok, err = reg.Consume(ctx, nonce, exp)
	require.NoError(t, err)
	assert.True(t, ok, "released nonce can be consumed again")

	n, err := reg.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := redisjti.NewClient(context.Background(), "://nope")
	assert.Error(t, err)
}
