package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket(rate, capacity float64) (*TokenBucket, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(rate, capacity)
	tb.now = func() time.Time { return now }
	return tb, &now
}

func TestTokenBucket_AllowsUpToCapacity(t *testing.T) {
	tb, _ := newTestBucket(1, 3)

	for i := range 3 {
		require.True(t, tb.Allow("10.0.0.1"), "request %d should be allowed", i+1)
	}
	assert.False(t, tb.Allow("10.0.0.1"), "4th request should be denied")
}

func TestTokenBucket_DifferentKeysAreIndependent(t *testing.T) {
	tb, _ := newTestBucket(1, 1)

	assert.True(t, tb.Allow("ip-a"))
	assert.False(t, tb.Allow("ip-a"))
	assert.True(t, tb.Allow("ip-b"))
}

func TestTokenBucket_Refills(t *testing.T) {
	tb, now := newTestBucket(0.5, 1)

	require.True(t, tb.Allow("k"))
	require.False(t, tb.Allow("k"))

	*now = now.Add(time.Second)
	assert.False(t, tb.Allow("k"), "half a token is not enough")

	*now = now.Add(time.Second)
	assert.True(t, tb.Allow("k"))
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	tb, now := newTestBucket(0, 2)

	assert.True(t, tb.Allow("k"))
	assert.True(t, tb.Allow("k"))
	*now = now.Add(time.Hour)
	assert.False(t, tb.Allow("k"))
}

func TestTokenBucket_Prune(t *testing.T) {
	tb, now := newTestBucket(1, 1)

	tb.Allow("old")
	*now = now.Add(11 * time.Minute)
	tb.Allow("recent")

	assert.Equal(t, 1, tb.Prune(10*time.Minute))
	// A pruned key starts again with a full bucket.
	assert.True(t, tb.Allow("old"))
}
