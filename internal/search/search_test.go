package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliparino/cliparino/pkg/twitch"
)

type fakeLister struct {
	clips []twitch.Clip
	err   error
}

func (f *fakeLister) GetClipsForBroadcaster(ctx context.Context, broadcasterID string, startedAt, endedAt time.Time, first int) ([]twitch.Clip, error) {
	return f.clips, f.err
}

func TestBestPrefersSubstringMatch(t *testing.T) {
	lister := &fakeLister{clips: []twitch.Clip{
		{ID: "1", Title: "Insane headshot montage", ViewCount: 10},
		{ID: "2", Title: "Funny moment", ViewCount: 1000},
	}}
	svc := New(lister, Config{})

	best, ok, err := svc.Best(context.Background(), "b1", "headshot montage", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", best.ID)
}

func TestBestFallsBackToWordOverlap(t *testing.T) {
	lister := &fakeLister{clips: []twitch.Clip{
		{ID: "1", Title: "Clutch ace round", ViewCount: 5},
	}}
	svc := New(lister, Config{})

	best, ok, err := svc.Best(context.Background(), "b1", "ace clutch win", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", best.ID)
}

func TestBestReturnsFalseBelowThreshold(t *testing.T) {
	lister := &fakeLister{clips: []twitch.Clip{
		{ID: "1", Title: "Completely unrelated content", ViewCount: 5},
	}}
	svc := New(lister, Config{FuzzyMatchThreshold: 0.9})

	_, ok, err := svc.Best(context.Background(), "b1", "zzzqqq", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBestBreaksTiesByViewCount(t *testing.T) {
	now := time.Now()
	lister := &fakeLister{clips: []twitch.Clip{
		{ID: "low", Title: "exact phrase match", ViewCount: 1, CreatedAt: now},
		{ID: "high", Title: "exact phrase match", ViewCount: 999, CreatedAt: now},
	}}
	svc := New(lister, Config{})

	best, ok, err := svc.Best(context.Background(), "b1", "exact phrase match", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "high", best.ID)
}

func TestBestReturnsFalseWithNoCandidates(t *testing.T) {
	lister := &fakeLister{}
	svc := New(lister, Config{})

	_, ok, err := svc.Best(context.Background(), "b1", "anything", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
