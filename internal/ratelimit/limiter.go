package ratelimit

import (
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/metrics"
)

// Reason identifies which limit denied an admission.
type Reason string

const (
	ReasonDeviceLimit Reason = "DEVICE_LIMIT_EXCEEDED"
	ReasonOriginLimit Reason = "ORIGIN_LIMIT_EXCEEDED"
	ReasonGlobalLimit Reason = "GLOBAL_LIMIT_EXCEEDED"
)

// Class selects which keyed limit an admission is checked against.
type Class int

const (
	ClassDevice Class = iota
	ClassOrigin
)

func (c Class) String() string {
	switch c {
	case ClassDevice:
		return "device"
	case ClassOrigin:
		return "origin"
	default:
		return "unknown"
	}
}

func (c Class) reason() Reason {
	if c == ClassOrigin {
		return ReasonOriginLimit
	}
	return ReasonDeviceLimit
}

// Limit is a token bucket policy: sustained rate plus burst capacity.
type Limit struct {
	Capacity        float64
	RefillPerSecond float64
}

// Config holds the limits and the bucket cache bounds.
type Config struct {
	Device Limit
	Origin Limit
	Global Limit

	// MaxTrackedKeys caps the keyed bucket map; least recently used keys
	// are evicted past the cap. Zero means unbounded.
	MaxTrackedKeys int

	// KeyTTL evicts buckets idle for longer than this.
	KeyTTL time.Duration

	// SweepInterval is how often idle buckets are swept. Zero disables
	// the background sweep.
	SweepInterval time.Duration
}

// Result is an admission decision.
type Result struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
	Remaining  int
}

// Limiter answers admit/deny decisions against a per-key bucket and a
// shared global bucket. Tokens are consumed from both buckets only when
// both can cover the cost; a denial consumes nothing.
type Limiter struct {
	cfg     Config
	global  *TokenBucket
	buckets *bucketCache
	now     func() time.Time
	done    chan struct{}
}

// New creates a Limiter and starts its idle-bucket sweeper.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: newBucketCache(cfg.MaxTrackedKeys, cfg.KeyTTL),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	l.global = NewTokenBucket(cfg.Global.Capacity, cfg.Global.RefillPerSecond, l.now())

	if cfg.SweepInterval > 0 {
		go l.sweepLoop()
	}
	return l
}

// Admit checks a single-unit admission for key.
func (l *Limiter) Admit(class Class, key string) Result {
	res, _ := l.AdmitN(class, key, 1)
	return res
}

// AdmitN checks an admission of the given cost for key. The empty key is
// a valid identity and gets its own bucket; a non-positive cost is a
// caller error. A cost above the bucket capacity is always denied with
// RetryAfter zero, since no refill can ever satisfy it.
func (l *Limiter) AdmitN(class Class, key string, cost float64) (Result, error) {
	if cost <= 0 {
		return Result{}, fmt.Errorf("admission cost must be positive, got %v", cost)
	}

	limit, err := l.limitFor(class)
	if err != nil {
		return Result{}, err
	}

	now := l.now()
	bucket := l.buckets.getOrCreate(class.String()+":"+key, func() *TokenBucket {
		return NewTokenBucket(limit.Capacity, limit.RefillPerSecond, now)
	}, now)

	// Both buckets are held for the duration of the decision so the
	// two-level check and consumption are atomic. Lock order is always
	// keyed bucket then global; keyed buckets never lock each other.
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	l.global.mu.Lock()
	defer l.global.mu.Unlock()

	bucket.refill(now)
	l.global.refill(now)

	if !bucket.hasTokens(cost) {
		res := Result{
			Allowed:    false,
			Reason:     class.reason(),
			RetryAfter: bucket.retryAfter(cost),
			Remaining:  int(bucket.tokens),
		}
		metrics.RateLimitDenied.WithLabelValues(string(res.Reason)).Inc()
		return res, nil
	}

	if !l.global.hasTokens(cost) {
		res := Result{
			Allowed:    false,
			Reason:     ReasonGlobalLimit,
			RetryAfter: l.global.retryAfter(cost),
			Remaining:  int(bucket.tokens),
		}
		metrics.RateLimitDenied.WithLabelValues(string(res.Reason)).Inc()
		return res, nil
	}

	bucket.consume(cost)
	l.global.consume(cost)

	return Result{Allowed: true, Remaining: int(bucket.tokens)}, nil
}

func (l *Limiter) limitFor(class Class) (Limit, error) {
	switch class {
	case ClassDevice:
		return l.cfg.Device, nil
	case ClassOrigin:
		return l.cfg.Origin, nil
	default:
		return Limit{}, fmt.Errorf("unknown rate limit class %d", class)
	}
}

// TrackedKeys returns how many keyed buckets are currently held.
func (l *Limiter) TrackedKeys() int {
	return l.buckets.len()
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.buckets.sweep(l.now())
		case <-l.done:
			return
		}
	}
}

// Close stops the background sweeper.
func (l *Limiter) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}
