package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/payrail/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNilLimiterAllowsEverything(t *testing.T) {
	ctx := context.Background()

	var limiter *NotificationLimiter
	assert.True(t, limiter.Allow(ctx, "sandbox", "203.0.113.7"))
	assert.True(t, limiter.Allow(ctx, "sandbox", ""))

	assert.Nil(t, NewNotificationLimiter(nil))
}

func TestNilLockerNeverGrants(t *testing.T) {
	ctx := context.Background()

	var locker *Locker
	_, ok, err := locker.TryLock(ctx, "payrail:test", time.Second)
	assert.Error(t, err)
	assert.False(t, ok)

	// Releasing without a client is a no-op, not a failure.
	assert.NoError(t, locker.Release(ctx, "payrail:test", "token"))

	assert.Nil(t, NewLocker(nil))
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	assert.Nil(t, NewRedisClient(config.Config{}))
	assert.NotNil(t, NewRedisClient(config.Config{RedisAddr: "localhost:6379"}))
}
