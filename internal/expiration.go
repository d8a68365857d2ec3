package internal

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/AnatoleLucet/loom/internal/scheduler"
)

// ExpirationTime is a deadline encoded so that larger values are more
// urgent. Sync beats every computed deadline and Never loses to all of them.
type ExpirationTime int64

const (
	NoWork ExpirationTime = 0
	Never  ExpirationTime = 1
	Sync   ExpirationTime = math.MaxInt32

	// 1 unit of expiration time represents 10ms
	unitSize    = 10
	magicOffset = Sync - 1
)

// ExpirationConfig holds the bucketing windows used to turn an ambient
// priority into a deadline. Updates whose deadlines fall in the same bucket
// share a render.
type ExpirationConfig struct {
	AsyncMs             int64 `yaml:"async_ms"`
	AsyncBucketMs       int64 `yaml:"async_bucket_ms"`
	InteractiveMs       int64 `yaml:"interactive_ms"`
	InteractiveBucketMs int64 `yaml:"interactive_bucket_ms"`
	SuspendRetryMs      int64 `yaml:"suspend_retry_ms"`
}

func DefaultExpirationConfig() ExpirationConfig {
	return ExpirationConfig{
		AsyncMs:             5000,
		AsyncBucketMs:       250,
		InteractiveMs:       150,
		InteractiveBucketMs: 100,
		SuspendRetryMs:      500,
	}
}

// Validate rejects windows that cannot be bucketed: buckets finer than one
// expiration unit and non positive windows.
func (c ExpirationConfig) Validate() error {
	switch {
	case c.AsyncMs <= 0:
		return errors.Errorf("expiration: async_ms must be positive, got %d", c.AsyncMs)
	case c.InteractiveMs <= 0:
		return errors.Errorf("expiration: interactive_ms must be positive, got %d", c.InteractiveMs)
	case c.AsyncBucketMs < unitSize:
		return errors.Errorf("expiration: async_bucket_ms must be at least %d, got %d", unitSize, c.AsyncBucketMs)
	case c.InteractiveBucketMs < unitSize:
		return errors.Errorf("expiration: interactive_bucket_ms must be at least %d, got %d", unitSize, c.InteractiveBucketMs)
	case c.SuspendRetryMs < 0:
		return errors.Errorf("expiration: suspend_retry_ms must not be negative, got %d", c.SuspendRetryMs)
	}
	return nil
}

// normalize fills unset windows with their defaults and raises buckets to
// one expiration unit.
func (c ExpirationConfig) normalize() ExpirationConfig {
	def := DefaultExpirationConfig()
	if c.AsyncMs <= 0 {
		c.AsyncMs = def.AsyncMs
	}
	if c.InteractiveMs <= 0 {
		c.InteractiveMs = def.InteractiveMs
	}
	if c.AsyncBucketMs == 0 {
		c.AsyncBucketMs = def.AsyncBucketMs
	}
	if c.InteractiveBucketMs == 0 {
		c.InteractiveBucketMs = def.InteractiveBucketMs
	}
	c.AsyncBucketMs = max(c.AsyncBucketMs, unitSize)
	c.InteractiveBucketMs = max(c.InteractiveBucketMs, unitSize)
	c.SuspendRetryMs = max(c.SuspendRetryMs, 0)
	return c
}

func msToExpiration(ms int64) ExpirationTime {
	return magicOffset - ExpirationTime(ms/unitSize)
}

func expirationToMs(e ExpirationTime) int64 {
	return int64(magicOffset-e) * unitSize
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func ceiling(n, precision int64) int64 {
	return (n/precision + 1) * precision
}

func computeExpirationBucket(current ExpirationTime, expirationMs, bucketMs int64) ExpirationTime {
	return magicOffset - ExpirationTime(ceiling(int64(magicOffset-current)+expirationMs/unitSize, bucketMs/unitSize))
}

func (c ExpirationConfig) async(current ExpirationTime) ExpirationTime {
	return computeExpirationBucket(current, c.AsyncMs, c.AsyncBucketMs)
}

func (c ExpirationConfig) interactive(current ExpirationTime) ExpirationTime {
	return computeExpirationBucket(current, c.InteractiveMs, c.InteractiveBucketMs)
}

// expirationForPriority maps the scheduler's ambient priority to a deadline.
func (c ExpirationConfig) expirationForPriority(p scheduler.Priority, current ExpirationTime) ExpirationTime {
	switch p {
	case scheduler.ImmediatePriority:
		return Sync
	case scheduler.UserBlockingPriority:
		return c.interactive(current)
	case scheduler.IdlePriority:
		return Never
	default:
		return c.async(current)
	}
}

// priorityForExpiration infers the scheduler priority a root task should use
// to finish work at e before it expires.
func (c ExpirationConfig) priorityForExpiration(current, e ExpirationTime) scheduler.Priority {
	switch e {
	case Sync:
		return scheduler.ImmediatePriority
	case Never, NoWork:
		return scheduler.IdlePriority
	}

	left := expirationToMs(e) - expirationToMs(current)
	switch {
	case left <= 0:
		return scheduler.ImmediatePriority
	case left <= c.InteractiveMs+c.InteractiveBucketMs:
		return scheduler.UserBlockingPriority
	case left <= c.AsyncMs+c.AsyncBucketMs:
		return scheduler.NormalPriority
	default:
		return scheduler.LowPriority
	}
}
