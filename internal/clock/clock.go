// Package clock provides the two time bases the device runs on: a
// monotonic tick for debounce and back-off timers, and an NTP-corrected
// wall clock for absolute schedule targets.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"

	"github.com/sweeney/remoteio/internal/logging"
)

// Clock is the time source used by every component.
type Clock interface {
	// Now returns the corrected wall-clock time.
	Now() time.Time

	// Synced reports whether the wall clock has been synchronised at least once.
	Synced() bool

	// Mono returns the monotonic time elapsed since boot.
	Mono() time.Duration
}

// ErrNoServers is returned by Sync when no NTP server is configured.
var ErrNoServers = errors.New("clock: no ntp servers configured")

// unsyncedRetry is how often Run retries while the clock has never synced.
const unsyncedRetry = 30 * time.Second

// Real is a Clock backed by the system clock and corrected by NTP.
// All methods are safe for concurrent use.
type Real struct {
	start   time.Time
	offset  atomic.Int64
	synced  atomic.Bool
	servers []string
	query   func(host string) (*ntp.Response, error)
	logger  *logging.Logger
}

// NewReal creates a clock that queries servers in order on Sync.
func NewReal(servers []string, logger *logging.Logger) *Real {
	return &Real{
		start:   time.Now(),
		servers: servers,
		query:   ntp.Query,
		logger:  logger.With("component", "clock"),
	}
}

func (c *Real) Now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

func (c *Real) Synced() bool {
	return c.synced.Load()
}

// Mono uses the monotonic reading carried by time.Time.
func (c *Real) Mono() time.Duration {
	return time.Since(c.start)
}

// Sync queries the configured servers until one returns a valid response.
func (c *Real) Sync() error {
	if len(c.servers) == 0 {
		return ErrNoServers
	}
	var errs []error
	for _, host := range c.servers {
		resp, err := c.query(host)
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
			continue
		}
		c.offset.Store(int64(resp.ClockOffset))
		if !c.synced.Swap(true) {
			c.logger.Info("wall clock synchronised", "server", host, "offset", resp.ClockOffset)
		}
		return nil
	}
	return fmt.Errorf("ntp sync: %w", errors.Join(errs...))
}

// Run keeps the clock synchronised until ctx is done. It retries quickly
// while the clock has never synced, then every interval.
func (c *Real) Run(ctx context.Context, interval time.Duration) {
	for {
		wait := interval
		if err := c.Sync(); err != nil {
			c.logger.Warn("ntp sync failed", "error", err)
		}
		if !c.Synced() {
			wait = unsyncedRetry
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
