package entry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Unix(1000, 0)

	tests := []struct {
		name        string
		ttl         time.Duration
		expectedTTL int64
	}{
		{name: "explicit ttl", ttl: 60 * time.Second, expectedTTL: 60},
		{name: "zero ttl uses default", ttl: 0, expectedTTL: 300},
		{name: "negative ttl uses default", ttl: -5 * time.Second, expectedTTL: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New("payload", tt.ttl, now)
			assert.Equal(t, "payload", e.Value)
			assert.Equal(t, now.UnixMilli(), e.CachedAt)
			assert.Equal(t, tt.expectedTTL, e.TTL)
		})
	}
}

func TestExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	e := New("v", 10*time.Second, now)

	assert.False(t, e.Expired(now))
	assert.False(t, e.Expired(now.Add(10*time.Second)), "expiry boundary is exclusive")
	assert.True(t, e.Expired(now.Add(10*time.Second+time.Millisecond)))

	var nilEntry *Entry
	assert.False(t, nilEntry.Expired(now))
}

func TestExpiredAtEpoch(t *testing.T) {
	// Mock clocks start at the Unix epoch, so entries cached there carry
	// CachedAt == 0 and must still age out.
	epoch := time.Unix(0, 0)
	e := New("v", 10*time.Second, epoch)

	assert.Equal(t, int64(0), e.CachedAt)
	assert.False(t, e.Expired(epoch))
	assert.Equal(t, int64(10), e.RemainingTTL(epoch))
	assert.True(t, e.Expired(epoch.Add(11*time.Second)))
	assert.Equal(t, int64(0), e.RemainingTTL(epoch.Add(11*time.Second)))
}

func TestRemainingTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	e := New("v", 10*time.Second, now)

	assert.Equal(t, int64(10), e.RemainingTTL(now))
	assert.Equal(t, int64(7), e.RemainingTTL(now.Add(2500*time.Millisecond)), "partial seconds floor")
	assert.Equal(t, int64(0), e.RemainingTTL(now.Add(time.Minute)))

	var nilEntry *Entry
	assert.Equal(t, int64(0), nilEntry.RemainingTTL(now))
}

func TestJSONRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 123*int64(time.Millisecond))
	e := New(map[string]any{"id": float64(1)}, 90*time.Second, now)

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, e.CachedAt, decoded.CachedAt)
	assert.Equal(t, e.TTL, decoded.TTL)
	assert.Equal(t, e.Value, decoded.Value)
}
