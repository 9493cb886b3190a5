package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/remoteio/internal/logging"
)

func TestRealSyncUsesFirstValidServer(t *testing.T) {
	c := NewReal([]string{"bad.example", "good.example"}, logging.Discard())
	var asked []string
	now := time.Now()
	c.query = func(host string) (*ntp.Response, error) {
		asked = append(asked, host)
		if host == "bad.example" {
			return nil, errors.New("timeout")
		}
		return &ntp.Response{
			ClockOffset:   3 * time.Second,
			Stratum:       2,
			Leap:          ntp.LeapNoWarning,
			RTT:           10 * time.Millisecond,
			Precision:     time.Microsecond,
			RootDelay:     time.Millisecond,
			Time:          now,
			ReferenceTime: now.Add(-time.Minute),
		}, nil
	}

	require.False(t, c.Synced())
	require.NoError(t, c.Sync())

	assert.True(t, c.Synced())
	assert.Equal(t, []string{"bad.example", "good.example"}, asked)
	assert.WithinDuration(t, time.Now().Add(3*time.Second), c.Now(), time.Second)
}

func TestRealSyncAllFail(t *testing.T) {
	c := NewReal([]string{"a", "b"}, logging.Discard())
	c.query = func(string) (*ntp.Response, error) { return nil, errors.New("unreachable") }

	err := c.Sync()
	require.Error(t, err)
	assert.False(t, c.Synced())
}

func TestRealSyncNoServers(t *testing.T) {
	c := NewReal(nil, logging.Discard())
	assert.ErrorIs(t, c.Sync(), ErrNoServers)
}

func TestRealMonoIsMonotonic(t *testing.T) {
	c := NewReal(nil, logging.Discard())
	a := c.Mono()
	time.Sleep(2 * time.Millisecond)
	assert.Greater(t, c.Mono(), a)
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.Advance(10 * time.Second)

	assert.Equal(t, start.Add(10*time.Second), f.Now())
	assert.Equal(t, 10*time.Second, f.Mono())
	assert.True(t, f.Synced())

	f.SetSynced(false)
	assert.False(t, f.Synced())
}
