package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/payrail/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyNotification = "payrail:notify:%s:%s"

	notificationRate  = 10.0
	notificationBurst = 30
)

// NotificationLimiter throttles the public hosted-notification endpoint
// per (gateway, remote address). A nil limiter allows everything, so
// deployments without redis still work.
type NotificationLimiter struct {
	bucket *TokenBucket
}

func NewNotificationLimiter(client *redis.Client) *NotificationLimiter {
	if client == nil {
		return nil
	}
	return &NotificationLimiter{bucket: NewTokenBucket(client)}
}

func (l *NotificationLimiter) Allow(ctx context.Context, gatewayID, remoteAddr string) bool {
	if l == nil || l.bucket == nil {
		return true
	}
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		remoteAddr = "unknown"
	}
	key := fmt.Sprintf(keyNotification, gatewayID, remoteAddr)
	result, err := l.bucket.Allow(ctx, key, notificationRate, notificationBurst)
	if err != nil {
		// Fail open: a broken limiter must not drop payment notifications.
		return true
	}
	return result.Allowed
}

// NewRedisClient builds the shared redis client when an address is
// configured; nil otherwise.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     strings.TrimSpace(cfg.RedisPassword),
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}
