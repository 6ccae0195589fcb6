package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliparino/cliparino/internal/approval"
	"github.com/cliparino/cliparino/internal/clip"
	"github.com/cliparino/cliparino/internal/event"
	"github.com/cliparino/cliparino/pkg/twitch"
	"github.com/cliparino/cliparino/pkg/utils"
)

type fakeHelix struct {
	mu sync.Mutex

	clipByID   map[string]*twitch.Clip
	clipByURL  map[string]*twitch.Clip
	loginToID  map[string]string
	clipsByBC  map[string][]twitch.Clip
	channelInfo map[string]*twitch.ChannelInfo

	sentMessages []string
	shoutouts    int

	failLookup bool
}

func newFakeHelix() *fakeHelix {
	return &fakeHelix{
		clipByID:    map[string]*twitch.Clip{},
		clipByURL:   map[string]*twitch.Clip{},
		loginToID:   map[string]string{},
		clipsByBC:   map[string][]twitch.Clip{},
		channelInfo: map[string]*twitch.ChannelInfo{},
	}
}

func (f *fakeHelix) GetClipById(ctx context.Context, clipID string) (*twitch.Clip, error) {
	if f.failLookup {
		return nil, fmt.Errorf("not found")
	}
	c, ok := f.clipByID[clipID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (f *fakeHelix) GetClipByUrl(ctx context.Context, clipURL string) (*twitch.Clip, error) {
	c, ok := f.clipByURL[clipURL]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return c, nil
}

func (f *fakeHelix) GetBroadcasterIdByLogin(ctx context.Context, login string) (string, error) {
	id, ok := f.loginToID[login]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return id, nil
}

func (f *fakeHelix) GetClipsForBroadcaster(ctx context.Context, broadcasterID string, startedAt, endedAt time.Time, first int) ([]twitch.Clip, error) {
	var out []twitch.Clip
	for _, c := range f.clipsByBC[broadcasterID] {
		if c.CreatedAt.Before(startedAt) || c.CreatedAt.After(endedAt) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeHelix) GetChannelInfo(ctx context.Context, broadcasterID string) (*twitch.ChannelInfo, error) {
	info, ok := f.channelInfo[broadcasterID]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return info, nil
}

func (f *fakeHelix) SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentMessages = append(f.sentMessages, message)
	return nil
}

func (f *fakeHelix) SendShoutout(ctx context.Context, fromBroadcasterID, toBroadcasterID, moderatorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shoutouts++
	return nil
}

func (f *fakeHelix) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentMessages...)
}

type fakeEngine struct {
	mu       sync.Mutex
	enqueued []clip.QueueEntry
	stops    int
	replays  int
}

func (e *fakeEngine) Enqueue(entry clip.QueueEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueued = append(e.enqueued, entry)
}
func (e *fakeEngine) Stop()   { e.mu.Lock(); e.stops++; e.mu.Unlock() }
func (e *fakeEngine) Replay() { e.mu.Lock(); e.replays++; e.mu.Unlock() }

func (e *fakeEngine) enqueuedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.enqueued)
}

type fakeSearch struct {
	result clip.Clip
	ok     bool
}

func (f *fakeSearch) Best(ctx context.Context, broadcasterID, terms string, now time.Time) (clip.Clip, bool, error) {
	return f.result, f.ok, nil
}

func newTestRouter(helix HelixClient, engine PlaybackEngine, search SearchService, gate *approval.Gate, cfg Config) *Router {
	logger := utils.NewStructuredLogger(utils.LogLevelDebug)
	return New(context.Background(), helix, engine, search, gate, nil, cfg, logger)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestParseCommand(t *testing.T) {
	cmd, args, ok := parseCommand("!watch https://clips.twitch.tv/abc")
	require.True(t, ok)
	assert.Equal(t, "watch", cmd)
	assert.Equal(t, "https://clips.twitch.tv/abc", args)

	_, _, ok = parseCommand("just chatting")
	assert.False(t, ok)

	cmd, _, ok = parseCommand("!STOP")
	require.True(t, ok)
	assert.Equal(t, "stop", cmd)
}

func TestHandleWatchByID(t *testing.T) {
	helix := newFakeHelix()
	helix.clipByID["abc123"] = &twitch.Clip{ID: "abc123", Title: "Nice", Duration: 20}
	engine := &fakeEngine{}

	r := newTestRouter(helix, engine, &fakeSearch{}, approval.New(), Config{BroadcasterID: "bc1"})
	r.Handle(event.NewChatMessage(event.ChatMessage{User: "viewer", ChannelID: "bc1", Text: "!watch abc123"}))

	waitFor(t, func() bool { return engine.enqueuedCount() == 1 })
}

func TestHandleStopAndReplay(t *testing.T) {
	helix := newFakeHelix()
	engine := &fakeEngine{}
	r := newTestRouter(helix, engine, &fakeSearch{}, approval.New(), Config{BroadcasterID: "bc1"})

	r.Handle(event.NewChatMessage(event.ChatMessage{Text: "!stop"}))
	r.Handle(event.NewChatMessage(event.ChatMessage{Text: "!replay"}))

	waitFor(t, func() bool { engine.mu.Lock(); defer engine.mu.Unlock(); return engine.stops == 1 && engine.replays == 1 })
}

func TestHandleSearchRequiresApprovalForNonExempt(t *testing.T) {
	helix := newFakeHelix()
	helix.loginToID["streamer"] = "bc2"
	engine := &fakeEngine{}
	gate := approval.New()
	search := &fakeSearch{result: clip.Clip{ID: "found1", Title: "Cool Clip", DurationSeconds: 15}, ok: true}

	r := newTestRouter(helix, engine, search, gate, Config{BroadcasterID: "bc1", ApprovalTimeoutSeconds: 30})
	r.Handle(event.NewChatMessage(event.ChatMessage{User: "viewer", Text: "!watch @streamer cool montage"}))

	waitFor(t, func() bool { return len(helix.messages()) == 1 })
	assert.Equal(t, 0, engine.enqueuedCount())
	assert.Contains(t, helix.messages()[0], "wants to play")
}

func TestHandleSearchExemptBadgeSkipsApproval(t *testing.T) {
	helix := newFakeHelix()
	helix.loginToID["streamer"] = "bc2"
	engine := &fakeEngine{}
	gate := approval.New()
	search := &fakeSearch{result: clip.Clip{ID: "found1", Title: "Cool Clip", DurationSeconds: 15}, ok: true}

	r := newTestRouter(helix, engine, search, gate, Config{BroadcasterID: "bc1"})
	r.Handle(event.NewChatMessage(event.ChatMessage{User: "mod1", Text: "!watch @streamer cool montage", Badges: []string{"moderator"}}))

	waitFor(t, func() bool { return engine.enqueuedCount() == 1 })
}

func TestHandleApproveRequiresAuthorization(t *testing.T) {
	helix := newFakeHelix()
	engine := &fakeEngine{}
	gate := approval.New()
	id, _ := gate.Open(clip.Clip{ID: "pendingclip"}, "viewer", time.Minute)

	r := newTestRouter(helix, engine, &fakeSearch{}, gate, Config{BroadcasterID: "bc1"})
	r.Handle(event.NewChatMessage(event.ChatMessage{User: "viewer", Text: fmt.Sprintf("!approve %s", id)}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, engine.enqueuedCount())

	r.Handle(event.NewChatMessage(event.ChatMessage{User: "mod1", Text: fmt.Sprintf("!approve %s", id), Badges: []string{"moderator"}}))
	waitFor(t, func() bool { return engine.enqueuedCount() == 1 })
}

func TestHandleIgnoresRaidEvents(t *testing.T) {
	helix := newFakeHelix()
	engine := &fakeEngine{}
	r := newTestRouter(helix, engine, &fakeSearch{}, approval.New(), Config{BroadcasterID: "bc1"})

	r.Handle(event.NewRaid(event.Raid{FromUser: "raider", ViewerCount: 5}))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, engine.enqueuedCount())
}
