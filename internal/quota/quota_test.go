package quota

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlimited(t *testing.T) {
	d, err := Unlimited{}.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.NoError(t, Unlimited{}.Refund(context.Background(), "10.0.0.1"))
}

func TestRedisLimiterUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLimiter(client, 3, time.Minute)
	_, err := l.Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
	assert.Error(t, l.Refund(context.Background(), "10.0.0.1"))
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Decision{Allowed: true}.Err())

	err := Decision{Allowed: false, ResetIn: 90 * time.Second}.Err()
	assert.ErrorIs(t, err, ErrExceeded)
	assert.Contains(t, err.Error(), "1m30s")
}

// TestRedisLimiterWindow runs against a real Redis when TEST_REDIS_ADDRESS is set
func TestRedisLimiterWindow(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000000")
	l := NewRedisLimiter(client, 2, time.Minute)
	defer client.Del(ctx, l.prefix+key)

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}

	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.LessOrEqual(t, d.ResetIn, time.Minute)

	// two refunds bring the window back under the limit
	require.NoError(t, l.Refund(ctx, key))
	require.NoError(t, l.Refund(ctx, key))
	d, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

// TestRedisLimiterRefundExpired runs against a real Redis when TEST_REDIS_ADDRESS is set
func TestRedisLimiterRefundExpired(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	key := "test-refund-" + time.Now().Format("150405.000000000")
	l := NewRedisLimiter(client, 2, time.Minute)
	defer client.Del(ctx, l.prefix+key)

	require.NoError(t, l.Refund(ctx, key))
	n, err := client.Exists(ctx, l.prefix+key).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
