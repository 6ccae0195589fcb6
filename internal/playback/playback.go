// Package playback implements the PlaybackEngine (C4): the single-player
// state machine that drives OBS to play queued clips one at a time,
// modeled as a single goroutine owning all mutable state, reached only
// through a command channel, never by direct mutation from callers —
// the same Register/Unregister/Broadcast-style isolation a connection
// hub gives its clients, generalized here to
// Play/Stop/Replay/ObsDisconnected/ObsRepaired/Tick.
package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/cliparino/cliparino/internal/clip"
	"github.com/cliparino/cliparino/internal/obs"
	"github.com/cliparino/cliparino/internal/queue"
	"github.com/cliparino/cliparino/pkg/metrics"
	"github.com/cliparino/cliparino/pkg/utils"
)

// State is a PlaybackEngine state.
type State string

const (
	StateIdle     State = "Idle"
	StateLoading  State = "Loading"
	StatePlaying  State = "Playing"
	StateCooldown State = "Cooldown"
	StateStopped  State = "Stopped"
)

const (
	defaultClipDuration = 30 * time.Second
	minPlaybackTimer    = 5 * time.Second
	maxPlaybackTimer    = 300 * time.Second
	playbackBuffer      = 2 * time.Second
	cooldownDwell       = 1 * time.Second

	// CommandChannelCapacity is the bounded inbox capacity; overflow
	// drops the command with a logged warning, since chat is lossy by
	// nature (spec design notes).
	CommandChannelCapacity = 32
)

// QuarantineError reports a queue entry dropped after exhausting its
// retry budget.
type QuarantineError struct {
	ClipID   string
	LastErr  error
}

func (e *QuarantineError) Error() string {
	return fmt.Sprintf("playback: quarantined clip %s: %v", e.ClipID, e.LastErr)
}

func (e *QuarantineError) Unwrap() error { return e.LastErr }

// ObsSink is the subset of obs.Controller the engine needs to drive
// playback. The connection itself is owned and serialized by the
// supervisor; the engine only issues already-serialized calls.
type ObsSink interface {
	EnsureSceneAndSource(ctx context.Context, desired obs.DesiredState) error
	SetBrowserSourceUrl(ctx context.Context, url string) error
	SetSourceVisibility(ctx context.Context, sceneName, sourceName string, visible bool) error
}

// ChatNotifier emits a single short chat line, when a chat channel is
// available. It must never block the engine.
type ChatNotifier interface {
	Notify(text string)
}

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdStop
	cmdReplay
	cmdObsDisconnected
	cmdObsRepaired
	cmdTick
)

type command struct {
	kind   commandKind
	tickGen uint64
}

// Engine is the PlaybackEngine. Construct with New and start with Run.
type Engine struct {
	obs    ObsSink
	queue  *queue.ClipQueue
	chat   ChatNotifier
	logger *utils.StructuredLogger
	scene  string
	source string
	url    func(c clip.Clip) string

	commands chan command

	state     State
	current   *clip.QueueEntry
	tickGen   uint64
	timer     *time.Timer
}

// Config bundles the static configuration Engine needs at construction.
type Config struct {
	SceneName  string
	SourceName string
	// BuildURL renders the player URL for a given clip (base URL plus
	// clip id as a query parameter — the page itself is an external
	// collaborator concern).
	BuildURL func(c clip.Clip) string
}

// New constructs an idle Engine.
func New(obsSink ObsSink, q *queue.ClipQueue, chat ChatNotifier, cfg Config, logger *utils.StructuredLogger) *Engine {
	return &Engine{
		obs:      obsSink,
		queue:    q,
		chat:     chat,
		logger:   logger.With("playback"),
		scene:    cfg.SceneName,
		source:   cfg.SourceName,
		url:      cfg.BuildURL,
		commands: make(chan command, CommandChannelCapacity),
		state:    StateIdle,
	}
}

// State returns the engine's current state. Safe to call from any
// goroutine; it is the only non-channel read the engine exposes, backed
// by the fact the engine itself is the sole writer and State is read
// via an atomic-free snapshot channel round-trip in practice callers
// only need it for metrics/tests.
func (e *Engine) State() State {
	return e.state
}

// Enqueue pushes entry onto the queue and signals the engine to check
// for work.
func (e *Engine) Enqueue(entry clip.QueueEntry) {
	e.queue.Enqueue(entry)
	e.signal(cmdPlay)
}

// Stop requests a stop.
func (e *Engine) Stop() { e.signal(cmdStop) }

// Replay requests a replay of the last-played clip.
func (e *Engine) Replay() { e.signal(cmdReplay) }

// ObsDisconnected notifies the engine that OBS dropped.
func (e *Engine) ObsDisconnected() { e.signal(cmdObsDisconnected) }

// ObsRepaired notifies the engine that OBS is connected again.
func (e *Engine) ObsRepaired() { e.signal(cmdObsRepaired) }

func (e *Engine) signal(kind commandKind) {
	select {
	case e.commands <- command{kind: kind}:
	default:
		e.logger.Warn("command channel full, dropping command", map[string]interface{}{"kind": int(kind)})
	}
}

// Run executes the command loop until ctx is canceled. It is the only
// goroutine that ever mutates engine state.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if e.timer != nil {
				e.timer.Stop()
			}
			return
		case cmd := <-e.commands:
			e.handle(ctx, cmd)
		}
	}
}

func (e *Engine) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdPlay:
		e.onPlay(ctx)
	case cmdStop:
		e.onStop(ctx)
	case cmdReplay:
		e.onReplay(ctx)
	case cmdObsDisconnected:
		e.onObsDisconnected(ctx)
	case cmdObsRepaired:
		e.onObsRepaired()
	case cmdTick:
		if cmd.tickGen == e.tickGen {
			e.onTick(ctx)
		}
	}
	e.setStateMetric()
}

func (e *Engine) setStateMetric() {
	for _, s := range []State{StateIdle, StateLoading, StatePlaying, StateCooldown, StateStopped} {
		v := 0.0
		if s == e.state {
			v = 1.0
		}
		metrics.PlaybackState.WithLabelValues(string(s)).Set(v)
	}
}

func (e *Engine) onPlay(ctx context.Context) {
	if e.state != StateIdle && e.state != StateStopped {
		return
	}
	entry, ok := e.queue.Dequeue()
	if !ok {
		return
	}
	e.startLoading(ctx, entry)
}

func (e *Engine) startLoading(ctx context.Context, entry clip.QueueEntry) {
	e.state = StateLoading
	e.current = &entry
	e.logger.Info("loading clip", map[string]interface{}{"clip_id": entry.Clip.ID})

	desired := obs.DesiredState{SceneName: e.scene, SourceName: e.source, URL: e.url(entry.Clip)}
	if err := e.obs.EnsureSceneAndSource(ctx, desired); err != nil {
		e.onLoadFailure(entry, err)
		return
	}
	if err := e.obs.SetBrowserSourceUrl(ctx, desired.URL); err != nil {
		e.onLoadFailure(entry, err)
		return
	}
	if err := e.obs.SetSourceVisibility(ctx, e.scene, e.source, true); err != nil {
		e.onLoadFailure(entry, err)
		return
	}

	e.state = StatePlaying
	e.startTimer(entry.Clip.DurationSeconds)
}

func (e *Engine) onLoadFailure(entry clip.QueueEntry, err error) {
	entry.FailureCount++
	e.logger.Warn("clip load failed", map[string]interface{}{"clip_id": entry.Clip.ID, "error": err.Error(), "failure_count": entry.FailureCount})

	e.state = StateCooldown
	if entry.Quarantined() {
		metrics.QuarantinedEntries.Inc()
		e.logger.Error("quarantining clip", &QuarantineError{ClipID: entry.Clip.ID, LastErr: err})
		if e.chat != nil {
			e.chat.Notify("Skipping clip, try again later")
		}
	} else {
		e.queue.EnqueueAtHead(entry)
	}
	e.current = nil
	e.scheduleCooldownExit()
}

func (e *Engine) startTimer(durationSeconds float64) {
	d := time.Duration(durationSeconds * float64(time.Second))
	if d <= 0 {
		d = defaultClipDuration
	}
	d += playbackBuffer
	if d < minPlaybackTimer {
		d = minPlaybackTimer
	}
	if d > maxPlaybackTimer {
		d = maxPlaybackTimer
	}

	e.tickGen++
	gen := e.tickGen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(d, func() {
		select {
		case e.commands <- command{kind: cmdTick, tickGen: gen}:
		default:
		}
	})
}

func (e *Engine) onTick(ctx context.Context) {
	switch e.state {
	case StatePlaying:
		e.hideAndBlank(ctx)
		if e.current != nil {
			e.queue.SetLastPlayed(e.current.Clip)
		}
		e.current = nil
		e.state = StateCooldown
		e.scheduleCooldownExit()
	case StateCooldown:
		e.state = StateIdle
		e.onPlay(ctx)
	}
}

func (e *Engine) onStop(ctx context.Context) {
	switch e.state {
	case StatePlaying, StateLoading, StateCooldown, StateIdle:
		e.hideAndBlank(ctx)
		e.current = nil
		e.state = StateStopped
	case StateStopped:
		// idempotent
	}
}

func (e *Engine) onReplay(ctx context.Context) {
	last, ok := e.queue.LastPlayed()
	if !ok {
		if e.chat != nil {
			e.chat.Notify("nothing to replay")
		}
		return
	}
	entry := clip.QueueEntry{Clip: last, EnqueuedAt: time.Now(), Source: clip.SourceReplay}
	e.queue.EnqueueAtHead(entry)
	if dequeued, ok := e.queue.Dequeue(); ok {
		e.startLoading(ctx, dequeued)
	}
}

func (e *Engine) onObsDisconnected(ctx context.Context) {
	if e.state != StatePlaying {
		return
	}

	entry := e.current
	e.current = nil
	e.hideAndBlank(ctx)
	e.state = StateCooldown

	if entry != nil {
		entry.FailureCount++
		e.logger.Warn("obs disconnected during playback", map[string]interface{}{"clip_id": entry.Clip.ID, "failure_count": entry.FailureCount})

		if entry.Quarantined() {
			metrics.QuarantinedEntries.Inc()
			e.logger.Error("quarantining clip", &QuarantineError{ClipID: entry.Clip.ID, LastErr: fmt.Errorf("obs disconnected")})
			if e.chat != nil {
				e.chat.Notify("Skipping clip, try again later")
			}
		} else {
			e.queue.EnqueueAtHead(*entry)
		}
	}

	e.scheduleCooldownExit()
}

func (e *Engine) onObsRepaired() {
	// No direct state transition; reconnect simply allows the next
	// Loading attempt to proceed normally.
}

func (e *Engine) hideAndBlank(ctx context.Context) {
	if err := e.obs.SetSourceVisibility(ctx, e.scene, e.source, false); err != nil {
		e.logger.Warn("failed to hide source", map[string]interface{}{"error": err.Error()})
	}
	if err := e.obs.SetBrowserSourceUrl(ctx, "about:blank"); err != nil {
		e.logger.Warn("failed to blank source url", map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) scheduleCooldownExit() {
	e.tickGen++
	gen := e.tickGen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(cooldownDwell, func() {
		select {
		case e.commands <- command{kind: cmdTick, tickGen: gen}:
		default:
		}
	})
}
