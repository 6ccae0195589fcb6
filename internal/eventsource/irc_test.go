package eventsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliparino/cliparino/internal/event"
)

func TestParseIRCLinePrivmsg(t *testing.T) {
	line := `@badges=moderator/1,subscriber/12;display-name=SomeMod;user-id=123;room-id=456 :somemod!somemod@somemod.tmi.twitch.tv PRIVMSG #somechannel :!watch https://clips.twitch.tv/abc`

	evt, ok := parseIRCLine(line)
	require.True(t, ok)
	assert.Equal(t, event.KindChatMessage, evt.Kind)
	assert.Equal(t, "SomeMod", evt.ChatMessage.User)
	assert.Equal(t, "123", evt.ChatMessage.UserID)
	assert.Equal(t, "456", evt.ChatMessage.ChannelID)
	assert.Equal(t, "!watch https://clips.twitch.tv/abc", evt.ChatMessage.Text)
	assert.True(t, evt.ChatMessage.HasBadge("moderator"))
}

func TestParseIRCLineRaid(t *testing.T) {
	line := `@msg-id=raid;msg-param-displayName=RaidingStreamer;msg-param-viewerCount=42;room-id=456 :tmi.twitch.tv USERNOTICE #somechannel`

	evt, ok := parseIRCLine(line)
	require.True(t, ok)
	assert.Equal(t, event.KindRaid, evt.Kind)
	assert.Equal(t, "RaidingStreamer", evt.Raid.FromUser)
	assert.Equal(t, 42, evt.Raid.ViewerCount)
}

func TestParseIRCLineIgnoresUnknownCommands(t *testing.T) {
	_, ok := parseIRCLine(":tmi.twitch.tv 001 somebot :Welcome, GLHF!")
	assert.False(t, ok)
}

func TestParseIRCBadges(t *testing.T) {
	badges := parseIRCBadges("broadcaster/1,subscriber/3")
	assert.Equal(t, []string{"broadcaster", "subscriber"}, badges)
	assert.Nil(t, parseIRCBadges(""))
}
