package redis

import (
	"context"
	"fmt"
	"time"
)

// Limiter is a fixed-window request budget.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimiter struct {
	client RedisClient
}

var _ Limiter = (*RateLimiter)(nil)

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

func CheckoutKey(clientIP string) string {
	return fmt.Sprintf("rate_limit:checkout:%s", clientIP)
}

func PollKey(paymentID string) string {
	return fmt.Sprintf("rate_limit:poll:%s", paymentID)
}
