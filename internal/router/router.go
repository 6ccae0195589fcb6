// Package router implements the CommandRouter (C10): chat command
// parsing and dispatch to the PlaybackEngine, ApprovalGate, and
// ShoutoutService, using a dispatcher-table command handling style
// generalized to Cliparino's chat grammar.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cliparino/cliparino/internal/approval"
	"github.com/cliparino/cliparino/internal/clip"
	"github.com/cliparino/cliparino/internal/event"
	"github.com/cliparino/cliparino/pkg/twitch"
	"github.com/cliparino/cliparino/pkg/utils"
)

// HelixClient is the subset of twitch.Client the router and its
// ShoutoutService sub-pipeline depend on.
type HelixClient interface {
	GetClipById(ctx context.Context, clipID string) (*twitch.Clip, error)
	GetClipByUrl(ctx context.Context, clipURL string) (*twitch.Clip, error)
	GetBroadcasterIdByLogin(ctx context.Context, login string) (string, error)
	GetClipsForBroadcaster(ctx context.Context, broadcasterID string, startedAt, endedAt time.Time, first int) ([]twitch.Clip, error)
	GetChannelInfo(ctx context.Context, broadcasterID string) (*twitch.ChannelInfo, error)
	SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) error
	SendShoutout(ctx context.Context, fromBroadcasterID, toBroadcasterID, moderatorID string) error
}

// PlaybackEngine is the subset of playback.Engine the router drives.
type PlaybackEngine interface {
	Enqueue(entry clip.QueueEntry)
	Stop()
	Replay()
}

// SearchService is the subset of search.Service the router depends on.
type SearchService interface {
	Best(ctx context.Context, broadcasterID, terms string, now time.Time) (clip.Clip, bool, error)
}

// Config holds the router's static behavior knobs.
type Config struct {
	BroadcasterID          string
	SenderID               string
	ExemptRoles            []string
	ApprovalTimeoutSeconds int
}

// Router parses chat commands and dispatches to the subsystems above.
// Handle implements coordinator.Sink: it is the terminal point of the
// EventCoordinator → CommandRouter edge.
type Router struct {
	ctx      context.Context
	helix    HelixClient
	engine   PlaybackEngine
	search   SearchService
	approval *approval.Gate
	shoutout *ShoutoutService
	cfg      Config
	logger   *utils.StructuredLogger
}

// New constructs a Router. ctx governs every task the router spawns to
// run Helix-bound command handling off the event-intake loop; canceling
// it abandons any in-flight command.
func New(ctx context.Context, helix HelixClient, engine PlaybackEngine, search SearchService, gate *approval.Gate, shoutout *ShoutoutService, cfg Config, logger *utils.StructuredLogger) *Router {
	if len(cfg.ExemptRoles) == 0 {
		cfg.ExemptRoles = []string{"broadcaster", "moderator"}
	}
	return &Router{
		ctx:      ctx,
		helix:    helix,
		engine:   engine,
		search:   search,
		approval: gate,
		shoutout: shoutout,
		cfg:      cfg,
		logger:   logger.With("router"),
	}
}

// Handle implements coordinator.Sink. Chat messages are parsed for
// commands; everything else (including raids) is currently ignored by
// the router — raids have no command grammar of their own.
func (r *Router) Handle(evt event.TwitchEvent) {
	if evt.Kind != event.KindChatMessage {
		return
	}
	msg := evt.ChatMessage
	cmd, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	// Each command runs as its own short-lived task so a slow Helix call
	// never head-of-line blocks the chat intake loop.
	go r.dispatch(cmd, args, msg)
}

func (r *Router) dispatch(cmd string, args string, msg event.ChatMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command handler panicked", fmt.Errorf("%v", rec), map[string]interface{}{"command": cmd})
		}
	}()

	switch cmd {
	case "watch":
		r.handleWatch(args, msg)
	case "stop":
		r.engine.Stop()
	case "replay":
		r.engine.Replay()
	case "so", "shoutout":
		r.handleShoutout(args, msg)
	case "approve":
		r.handleResolve(strings.TrimSpace(args), approval.Approved, msg)
	case "deny":
		r.handleResolve(strings.TrimSpace(args), approval.Denied, msg)
	}
}

func (r *Router) handleWatch(args string, msg event.ChatMessage) {
	args = strings.TrimSpace(args)
	if args == "" {
		r.reply("usage: !watch <url-or-id> or !watch @broadcaster <terms>")
		return
	}

	if strings.HasPrefix(args, "@") {
		r.handleSearch(args, msg)
		return
	}

	var resolved *twitch.Clip
	var err error
	if strings.Contains(args, "twitch.tv") {
		resolved, err = r.helix.GetClipByUrl(r.ctx, args)
	} else {
		resolved, err = r.helix.GetClipById(r.ctx, args)
	}
	if err != nil {
		r.logger.Warn("watch lookup failed", map[string]interface{}{"error": err.Error()})
		r.reply("couldn't find that clip")
		return
	}

	r.engine.Enqueue(clip.QueueEntry{
		Clip:       toDomainClip(*resolved),
		EnqueuedAt: time.Now(),
		Source:     clip.SourceWatch,
	})
}

func (r *Router) handleSearch(args string, msg event.ChatMessage) {
	fields := strings.SplitN(strings.TrimPrefix(args, "@"), " ", 2)
	if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		r.reply("usage: !watch @broadcaster <search terms>")
		return
	}
	broadcasterLogin, terms := fields[0], strings.TrimSpace(fields[1])

	broadcasterID, err := r.helix.GetBroadcasterIdByLogin(r.ctx, broadcasterLogin)
	if err != nil {
		r.reply(fmt.Sprintf("couldn't find broadcaster %s", broadcasterLogin))
		return
	}

	found, ok, err := r.search.Best(r.ctx, broadcasterID, terms, time.Now())
	if err != nil || !ok {
		r.reply("no matching clip found")
		return
	}

	if r.requiresApproval(msg) {
		id, _ := r.approval.Open(found, msg.User, time.Duration(r.cfg.ApprovalTimeoutSeconds)*time.Second)
		r.reply(fmt.Sprintf("@%s wants to play: '%s' (%ds). Type !approve %s or !deny %s", msg.User, found.Title, int(found.DurationSeconds), id, id))
		return
	}

	r.engine.Enqueue(clip.QueueEntry{Clip: found, EnqueuedAt: time.Now(), Source: clip.SourceSearch})
}

func (r *Router) requiresApproval(msg event.ChatMessage) bool {
	return !msg.HasAnyBadge(r.cfg.ExemptRoles)
}

func (r *Router) handleResolve(id string, verdict approval.Verdict, msg event.ChatMessage) {
	if id == "" {
		return
	}
	authorized := msg.HasBadge("broadcaster") || msg.HasBadge("moderator")
	resolved, err := r.approval.Resolve(id, verdict, authorized)
	if err != nil {
		r.logger.Warn("approval resolve failed", map[string]interface{}{"id": id, "error": err.Error()})
		return
	}
	if verdict == approval.Approved {
		r.engine.Enqueue(clip.QueueEntry{Clip: resolved, EnqueuedAt: time.Now(), Source: clip.SourceSearch})
	}
}

func (r *Router) handleShoutout(args string, msg event.ChatMessage) {
	login := strings.TrimSpace(args)
	if login == "" {
		r.reply("usage: !so <login>")
		return
	}
	if r.shoutout == nil {
		return
	}
	if err := r.shoutout.Run(r.ctx, login); err != nil {
		r.logger.Warn("shoutout failed", map[string]interface{}{"login": login, "error": err.Error()})
	}
}

func (r *Router) reply(text string) {
	if r.cfg.BroadcasterID == "" {
		return
	}
	if err := r.helix.SendChatMessage(r.ctx, r.cfg.BroadcasterID, r.cfg.SenderID, text); err != nil {
		r.logger.Warn("chat reply failed", map[string]interface{}{"error": err.Error()})
	}
}

// parseCommand splits a chat line into a lowercased command name (sans
// leading !) and the remaining free text. Returns ok=false for anything
// not starting with !.
func parseCommand(text string) (cmd string, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return "", "", false
	}
	text = strings.TrimPrefix(text, "!")
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(parts[0])
	if cmd == "" {
		return "", "", false
	}
	if len(parts) > 1 {
		args = parts[1]
	}
	return cmd, args, true
}

func toDomainClip(c twitch.Clip) clip.Clip {
	return clip.Clip{
		ID:              c.ID,
		EmbedURL:        c.EmbedURL,
		Title:           c.Title,
		BroadcasterName: c.BroadcasterName,
		BroadcasterID:   c.BroadcasterID,
		CreatorName:     c.CreatorName,
		GameName:        c.GameID,
		DurationSeconds: c.Duration,
		ViewCount:       c.ViewCount,
		Featured:        c.IsFeatured,
		CreatedAt:       c.CreatedAt,
	}
}
