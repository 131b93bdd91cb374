package ssh

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuthThrottleConfig configures the optional Redis-backed attempt
// throttle (SPEC_FULL §B). ServerConfig only consults a *AuthThrottle
// when non-nil; a zero MaxAttempts or Window falls back to 6 attempts
// per minute.
type AuthThrottleConfig struct {
	Addr     string
	Password string
	DB       int

	// MaxAttempts is the number of connections per source address
	// that may enter authentication inside Window before Allow starts
	// refusing; each connection counts once, however many
	// USERAUTH_REQUESTs it sends.
	MaxAttempts int

	// Window is the fixed period, starting at a source address's first
	// counted attempt, over which its attempt count is kept.
	Window time.Duration
}

// AuthThrottle is a per-source-address rate limiter for authentication
// attempts, backed by Redis INCR/EXPIRE so the count is shared across
// every sshgated process behind the same server, not just one
// connection or one process.
type AuthThrottle struct {
	client *redis.Client
	ctx    context.Context

	maxAttempts int
	window      time.Duration
}

// NewAuthThrottle dials Redis and verifies connectivity before
// returning, mirroring the connect-then-ping pattern shadowmesh's
// cache layer uses.
func NewAuthThrottle(cfg AuthThrottleConfig) (*AuthThrottle, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 6
	}
	window := cfg.Window
	if window == 0 {
		window = time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ssh: auth throttle: connect to redis: %w", err)
	}

	return &AuthThrottle{
		client:      client,
		ctx:         ctx,
		maxAttempts: maxAttempts,
		window:      window,
	}, nil
}

// Allow increments the attempt counter for source and reports whether
// the caller is still under the configured limit. The counter's TTL
// is (re)armed only on the first increment of a window so the count
// resets Window after the first attempt, not after every attempt.
func (a *AuthThrottle) Allow(source string) (bool, error) {
	key := fmt.Sprintf("sshgate:authattempts:%s", source)

	n, err := a.client.Incr(a.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ssh: auth throttle: %w", err)
	}
	if n == 1 {
		if err := a.client.Expire(a.ctx, key, a.window).Err(); err != nil {
			return false, fmt.Errorf("ssh: auth throttle: %w", err)
		}
	}
	return n <= int64(a.maxAttempts), nil
}

// Reset clears source's attempt count, called after a successful
// authentication so earlier connections from that source no longer
// count against it.
func (a *AuthThrottle) Reset(source string) error {
	key := fmt.Sprintf("sshgate:authattempts:%s", source)
	return a.client.Del(a.ctx, key).Err()
}

// Close releases the underlying Redis connection pool.
func (a *AuthThrottle) Close() error {
	return a.client.Close()
}
