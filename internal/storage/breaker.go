package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerBucket fails puts fast once the wrapped bucket keeps failing.
type BreakerBucket struct {
	next Bucket
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerBucket(next Bucket, log *zap.Logger) *BreakerBucket {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "photo-storage",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerBucket{next: next, cb: cb}
}

func (b *BreakerBucket) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Put(ctx, name, contentType, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrUnavailable
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (b *BreakerBucket) State() gobreaker.State {
	return b.cb.State()
}
