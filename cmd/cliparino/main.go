// Command cliparino is the composition root: it loads configuration,
// wires every subsystem together, and runs them until an OS signal asks
// for a graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cliparino/cliparino/config"
	"github.com/cliparino/cliparino/internal/approval"
	"github.com/cliparino/cliparino/internal/clip"
	"github.com/cliparino/cliparino/internal/coordinator"
	"github.com/cliparino/cliparino/internal/eventsource"
	"github.com/cliparino/cliparino/internal/health"
	"github.com/cliparino/cliparino/internal/obs"
	"github.com/cliparino/cliparino/internal/playback"
	"github.com/cliparino/cliparino/internal/queue"
	"github.com/cliparino/cliparino/internal/router"
	"github.com/cliparino/cliparino/internal/search"
	"github.com/cliparino/cliparino/internal/token"
	"github.com/cliparino/cliparino/pkg/sentry"
	"github.com/cliparino/cliparino/pkg/twitch"
	"github.com/cliparino/cliparino/pkg/utils"
)

const (
	shutdownTimeout = 5 * time.Second
	approvalSweepPeriod = 10 * time.Second
)

func main() {
	settingsPath := os.Getenv("CLIPARINO_SETTINGS_FILE")
	cfg, err := config.Load(settingsPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger := utils.NewStructuredLogger(utils.LogLevel(cfg.LogLevel)).With("main")

	if err := sentry.Init(&cfg.Sentry); err != nil {
		logger.Error("sentry init failed, continuing without error reporting", err)
	}
	defer sentry.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter := health.NewReporter()
	tokens := token.NewEnvProvider("TWITCH_ACCESS_TOKEN")

	helixClient, err := twitch.NewClient(cfg.Twitch.ClientID, tokens, logger)
	if err != nil {
		logger.Fatal("failed to construct twitch client", err)
		return
	}

	clipQueue := queue.New()

	obsClient := obs.NewClient(logger)
	desired := obs.DesiredState{
		SceneName:  cfg.Player.SceneName,
		SourceName: cfg.Player.SourceName,
		Width:      cfg.Player.Width,
		Height:     cfg.Player.Height,
		URL:        "about:blank",
	}
	obsController := obs.NewController(obsClient, desired, logger)
	connectionNotifier := obs.NewConnectionNotifier()
	obsSupervisor := obs.NewSupervisor(obsController, reporter, connectionNotifier, cfg.OBS.Host, cfg.OBS.Port, cfg.OBS.Password, logger)

	playbackCfg := playback.Config{
		SceneName:  cfg.Player.SceneName,
		SourceName: cfg.Player.SourceName,
		BuildURL: func(c clip.Clip) string {
			return cfg.Player.URL + "?clip=" + c.ID
		},
	}
	engine := playback.New(obsController, clipQueue, newChatNotifier(ctx, helixClient, cfg, logger), playbackCfg, logger)

	searchService := search.New(helixClient, search.Config{
		WindowDays:           cfg.ClipSearch.SearchWindowDays,
		FuzzyMatchThreshold:  cfg.ClipSearch.FuzzyMatchThreshold,
	})

	approvalGate := approval.New()

	shoutoutService := router.NewShoutoutService(helixClient, engine, cfg.Twitch.BroadcasterID, router.ShoutoutConfig{
		EnableMessage:      cfg.Shoutout.EnableMessage,
		MessageTemplate:    cfg.Shoutout.MessageTemplate,
		UseFeaturedFirst:   cfg.Shoutout.UseFeaturedClips,
		MaxClipLength:      cfg.Shoutout.MaxClipLength,
		MaxClipAgeDays:      cfg.Shoutout.MaxClipAgeDays,
		SendTwitchShoutout: cfg.Shoutout.SendTwitchShoutout,
		ModeratorID:        cfg.Twitch.BroadcasterID,
	}, logger)

	cmdRouter := router.New(ctx, helixClient, engine, searchService, approvalGate, shoutoutService, router.Config{
		BroadcasterID:          cfg.Twitch.BroadcasterID,
		SenderID:               cfg.Twitch.BroadcasterID,
		ExemptRoles:            cfg.ClipSearch.ExemptRoles,
		ApprovalTimeoutSeconds: cfg.ClipSearch.ApprovalTimeoutSeconds,
	}, logger)

	primarySource := eventsource.NewEventSubWS(cfg.Twitch.ClientID, cfg.Twitch.BroadcasterID, tokens, logger)
	fallbackSource := eventsource.NewIRC(cfg.Twitch.BroadcasterLogin, cfg.Twitch.BroadcasterLogin, tokens, logger)
	eventCoordinator := coordinator.New(primarySource, fallbackSource, cmdRouter, reporter, logger)

	var wg sync.WaitGroup
	runSupervised(ctx, &wg, logger, reporter, "playback", func(ctx context.Context) { engine.Run(ctx) })
	runSupervised(ctx, &wg, logger, reporter, "obs_supervisor", obsSupervisor.Run)
	runSupervised(ctx, &wg, logger, reporter, "event_coordinator", eventCoordinator.Run)
	runSupervised(ctx, &wg, logger, reporter, "approval_sweeper", func(ctx context.Context) {
		approvalGate.RunSweeper(ctx, approvalSweepPeriod)
	})
	runSupervised(ctx, &wg, logger, reporter, "obs_connection_bridge", func(ctx context.Context) {
		bridgeConnectionNotifications(ctx, connectionNotifier, engine)
	})

	go watchSettingsReload(ctx, logger, settingsPath, cfg, obsSupervisor)

	logger.Info("cliparino started", map[string]interface{}{"environment": cfg.Environment})

	waitForShutdownSignal(logger)

	logger.Info("shutdown signal received, draining subsystems", nil)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all subsystems stopped cleanly", nil)
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, exiting anyway", nil)
	}
}

// runSupervised runs fn in its own goroutine, reporting a panic to
// Sentry and the health reporter instead of crashing the process — the
// same isolation a per-connection hub gives each client.
func runSupervised(ctx context.Context, wg *sync.WaitGroup, logger *utils.StructuredLogger, reporter *health.Reporter, component string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic in %s: %v", component, rec)
				logger.Error("supervised task panicked", err)
				sentry.CaptureException(ctx, err)
				reporter.Report(component, health.Unhealthy, err)
			}
		}()
		fn(sentry.WithHub(ctx))
	}()
}

// bridgeConnectionNotifications forwards OBS connection state changes
// from the supervisor's single-slot notifier to the playback engine, so
// a dropped connection pauses playback instead of failing silently
// against a closed socket.
func bridgeConnectionNotifications(ctx context.Context, notifier obs.ConnectionNotifier, engine *playback.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case connected := <-notifier:
			if connected {
				engine.ObsRepaired()
			} else {
				engine.ObsDisconnected()
			}
		}
	}
}

// watchSettingsReload re-reads and validates the YAML settings file on
// SIGHUP. The reloaded configuration is not applied: running subsystems
// keep the settings they were constructed with, and a failed reload is
// only logged. A successful reload resumes the OBS supervisor's
// reconnect loop, since a config change is one of the two triggers it
// waits on once its attempt budget is exhausted.
func watchSettingsReload(ctx context.Context, logger *utils.StructuredLogger, settingsPath string, cfg *config.Config, obsSupervisor *obs.Supervisor) {
	if settingsPath == "" {
		return
	}

	reloads := make(chan os.Signal, 1)
	signal.Notify(reloads, syscall.SIGHUP)
	defer signal.Stop(reloads)

	for {
		select {
		case <-ctx.Done():
			return
		case <-reloads:
			if _, err := cfg.Reload(settingsPath); err != nil {
				logger.Error("settings reload failed", err)
				continue
			}
			logger.Info("settings reloaded", nil)
			obsSupervisor.Retry()
		}
	}
}

func waitForShutdownSignal(logger *utils.StructuredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Info("received signal", map[string]interface{}{"signal": sig.String()})
}

// newChatNotifier adapts twitch.Client into playback.ChatNotifier,
// sending a single short line to the broadcaster's channel.
func newChatNotifier(ctx context.Context, helix *twitch.Client, cfg *config.Config, logger *utils.StructuredLogger) playback.ChatNotifier {
	return &chatNotifier{ctx: ctx, helix: helix, cfg: cfg, logger: logger.With("chat_notifier")}
}

type chatNotifier struct {
	ctx    context.Context
	helix  *twitch.Client
	cfg    *config.Config
	logger *utils.StructuredLogger
}

func (c *chatNotifier) Notify(text string) {
	if c.cfg.Twitch.BroadcasterID == "" {
		return
	}
	if err := c.helix.SendChatMessage(c.ctx, c.cfg.Twitch.BroadcasterID, c.cfg.Twitch.BroadcasterID, text); err != nil {
		c.logger.Warn("chat notification failed", map[string]interface{}{"error": err.Error()})
	}
}
