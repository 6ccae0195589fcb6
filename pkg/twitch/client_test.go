package twitch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractClipSlug(t *testing.T) {
	cases := map[string]string{
		"https://clips.twitch.tv/AwkwardClipSlug":                 "AwkwardClipSlug",
		"https://www.twitch.tv/somestreamer/clip/AwkwardClipSlug": "AwkwardClipSlug",
		"https://m.twitch.tv/clip/AwkwardClipSlug":                "AwkwardClipSlug",
	}
	for input, want := range cases {
		got, err := extractClipSlug(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestExtractClipSlugMalformed(t *testing.T) {
	_, err := extractClipSlug("not a url at all")
	require.Error(t, err)
	var malformed *MalformedURLError
	assert.ErrorAs(t, err, &malformed)
}

func TestCircuitBreakerOpensAfterFailureLimit(t *testing.T) {
	cb := NewCircuitBreaker(3, 50*time.Millisecond)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	err := cb.Allow()
	require.Error(t, err)
	var cbErr *CircuitBreakerError
	assert.ErrorAs(t, err, &cbErr)
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	require.Error(t, cb.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.NoError(t, cb.Allow())
}

func TestMemoryCacheClipRoundTrip(t *testing.T) {
	c := newMemoryCache()
	_, ok := c.getClip("abc")
	assert.False(t, ok)

	c.putClip(Clip{ID: "abc", Title: "test clip"})
	got, ok := c.getClip("abc")
	require.True(t, ok)
	assert.Equal(t, "test clip", got.Title)
}

func TestMemoryCacheBroadcasterIDRoundTrip(t *testing.T) {
	c := newMemoryCache()
	c.putBroadcasterID("somelogin", "12345")
	got, ok := c.getBroadcasterID("somelogin")
	require.True(t, ok)
	assert.Equal(t, "12345", got)
}

func TestParseRetryAfter(t *testing.T) {
	future := time.Now().Add(5 * time.Second).Unix()
	d := parseRetryAfter(timeToHeader(future))
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 6*time.Second)

	assert.Equal(t, time.Second, parseRetryAfter(""))
	assert.Equal(t, time.Second, parseRetryAfter("not-a-number"))
}

func timeToHeader(unix int64) string {
	return fmt.Sprintf("%d", unix)
}
