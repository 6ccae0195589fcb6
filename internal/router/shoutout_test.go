package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliparino/cliparino/pkg/twitch"
	"github.com/cliparino/cliparino/pkg/utils"
)

func TestShoutoutRunEnqueuesEligibleClip(t *testing.T) {
	helix := newFakeHelix()
	helix.loginToID["otherstreamer"] = "bc9"
	helix.channelInfo["bc9"] = &twitch.ChannelInfo{BroadcasterName: "OtherStreamer", GameName: "Rocket League"}
	helix.clipsByBC["bc9"] = []twitch.Clip{
		{ID: "clip1", Title: "Sick Save", Duration: 25, ViewCount: 500, CreatedAt: time.Now().Add(-12 * time.Hour)},
	}
	engine := &fakeEngine{}

	cfg := ShoutoutConfig{
		EnableMessage:      true,
		MessageTemplate:    "Check out {broadcaster}, they were last seen playing {game}!",
		UseFeaturedFirst:   true,
		MaxClipLength:      60,
		MaxClipAgeDays:     365,
		SendTwitchShoutout: true,
		ModeratorID:        "mod1",
	}
	svc := NewShoutoutService(helix, engine, "bc1", cfg, utils.NewStructuredLogger(utils.LogLevelDebug))

	err := svc.Run(context.Background(), "otherstreamer")
	require.NoError(t, err)

	assert.Equal(t, 1, engine.enqueuedCount())
	assert.Equal(t, 1, helix.shoutouts)
	require.Len(t, helix.messages(), 1)
	assert.Equal(t, "Check out OtherStreamer, they were last seen playing Rocket League!", helix.messages()[0])
}

func TestShoutoutRunExpandsWindowWhenFirstIsEmpty(t *testing.T) {
	helix := newFakeHelix()
	helix.loginToID["otherstreamer"] = "bc9"
	helix.channelInfo["bc9"] = &twitch.ChannelInfo{BroadcasterName: "OtherStreamer", GameName: "Chess"}

	old := twitch.Clip{ID: "oldclip", Title: "Old Gem", Duration: 10, ViewCount: 50, CreatedAt: time.Now().Add(-20 * 24 * time.Hour)}
	helix.clipsByBC["bc9"] = []twitch.Clip{old}

	engine := &fakeEngine{}
	cfg := ShoutoutConfig{MaxClipLength: 60, MaxClipAgeDays: 365}
	svc := NewShoutoutService(helix, engine, "bc1", cfg, utils.NewStructuredLogger(utils.LogLevelDebug))

	err := svc.Run(context.Background(), "otherstreamer")
	require.NoError(t, err)
	assert.Equal(t, 1, engine.enqueuedCount())
}

func TestShoutoutRunNoEligibleClipsNoopsCleanly(t *testing.T) {
	helix := newFakeHelix()
	helix.loginToID["otherstreamer"] = "bc9"
	engine := &fakeEngine{}

	cfg := ShoutoutConfig{MaxClipLength: 5, MaxClipAgeDays: 1}
	svc := NewShoutoutService(helix, engine, "bc1", cfg, utils.NewStructuredLogger(utils.LogLevelDebug))

	err := svc.Run(context.Background(), "otherstreamer")
	require.NoError(t, err)
	assert.Equal(t, 0, engine.enqueuedCount())
}

func TestIsFeaturedFallsBackToViewCount(t *testing.T) {
	assert.True(t, isFeatured(twitch.Clip{ViewCount: 150}))
	assert.False(t, isFeatured(twitch.Clip{ViewCount: 10}))
	assert.True(t, isFeatured(twitch.Clip{IsFeatured: true, ViewCount: 0}))
}
