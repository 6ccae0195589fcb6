package obs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cliparino/cliparino/internal/backoff"
	"github.com/cliparino/cliparino/internal/health"
	"github.com/cliparino/cliparino/pkg/metrics"
	"github.com/cliparino/cliparino/pkg/utils"
)

const (
	healthComponent   = "obs"
	driftPollPeriod   = 60 * time.Second
	maxReconnectTries = 10
)

// ConnectionNotifier is the single-slot connection-state notifier the
// supervisor pushes to the playback engine — latest wins, per spec
// design notes.
type ConnectionNotifier chan bool

// NewConnectionNotifier returns a single-slot notifier channel.
func NewConnectionNotifier() ConnectionNotifier {
	return make(ConnectionNotifier, 1)
}

// notify pushes the latest connection state, dropping a stale unread
// value if the consumer hasn't drained it yet.
func (n ConnectionNotifier) notify(connected bool) {
	for {
		select {
		case n <- connected:
			return
		default:
			select {
			case <-n:
			default:
			}
		}
	}
}

// Supervisor owns OBS connection lifecycle: initial connect, the
// reconnect loop, and the periodic drift check. All three concerns run
// on a single task so they never race on the shared Controller.
type Supervisor struct {
	controller *Controller
	health     *health.Reporter
	notifier   ConnectionNotifier
	logger     *utils.StructuredLogger

	host     string
	port     int
	password string

	// retry is a single-slot trigger for resuming reconnect attempts
	// after the attempt budget has been exhausted — pushed by a
	// config reload or a manual retry command.
	retry chan struct{}
}

// NewSupervisor constructs a Supervisor for the given connection target.
func NewSupervisor(controller *Controller, reporter *health.Reporter, notifier ConnectionNotifier, host string, port int, password string, logger *utils.StructuredLogger) *Supervisor {
	return &Supervisor{
		controller: controller,
		health:     reporter,
		notifier:   notifier,
		logger:     logger.With("obs"),
		host:       host,
		port:       port,
		password:   password,
		retry:      make(chan struct{}, 1),
	}
}

// Retry requests an immediate reconnect attempt, bypassing the hold
// Run enters once it has exhausted maxReconnectTries. Called from the
// configuration-reload handler or an operator-issued retry command; a
// retry already queued is coalesced rather than stacked.
func (s *Supervisor) Retry() {
	select {
	case s.retry <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled. It connects immediately, starts
// reconnecting as soon as a disconnect is seen (up to maxReconnectTries,
// each attempt waiting its backoff.Default delay rather than the
// drift-check ticker), and drifts-checks on
// driftPollPeriod only while connected. Once a reconnect run exhausts
// its attempt budget, Run stops retrying until Retry is called or ctx
// is canceled — the two are independent concerns and must not share a
// single ticker.
func (s *Supervisor) Run(ctx context.Context) {
	connected := s.connectInitial(ctx)

	ticker := time.NewTicker(driftPollPeriod)
	defer ticker.Stop()

	for {
		if !connected {
			if ctx.Err() != nil {
				return
			}
			connected = s.reconnect(ctx)
			if !connected {
				select {
				case <-ctx.Done():
					return
				case <-s.retry:
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.controller.Disconnect()
			return
		case <-s.controller.Disconnected():
			connected = false
		case <-ticker.C:
			s.checkDrift(ctx)
		}
	}
}

func (s *Supervisor) connectInitial(ctx context.Context) bool {
	if err := s.controller.Connect(ctx, s.host, s.port, s.password); err != nil {
		s.health.Report(healthComponent, health.Unhealthy, err)
		s.notifier.notify(false)
		return false
	}

	s.health.Report(healthComponent, health.Healthy, nil)
	s.notifier.notify(true)

	if err := s.controller.EnsureSceneAndSource(ctx, s.controller.desired); err != nil {
		s.health.Report(healthComponent, health.Degraded, err)
	}
	return true
}

// reconnect runs the backoff.Default reconnect loop, up to
// maxReconnectTries attempts for this disconnect event, returning
// whether it succeeded.
func (s *Supervisor) reconnect(ctx context.Context) bool {
	for attempt := 0; attempt < maxReconnectTries; attempt++ {
		metrics.ObsReconnectAttempts.Inc()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff.Default.Delay(attempt)):
		}

		err := s.controller.Connect(ctx, s.host, s.port, s.password)
		if err == nil {
			s.health.Report(healthComponent, health.Healthy, nil)
			s.health.RecordRepair(healthComponent, "reconnected")
			s.notifier.notify(true)

			if ensureErr := s.controller.EnsureSceneAndSource(ctx, s.controller.desired); ensureErr != nil {
				s.health.Report(healthComponent, health.Degraded, ensureErr)
			}
			return true
		}

		s.health.RecordRepair(healthComponent, fmt.Sprintf("reconnect attempt %d failed: %v", attempt+1, err))
	}

	s.health.Report(healthComponent, health.Unhealthy, fmt.Errorf("exhausted %d reconnect attempts, waiting for config reload or manual retry", maxReconnectTries))
	s.notifier.notify(false)
	return false
}

// checkDrift polls ObserveState and repairs any divergence from desired.
func (s *Supervisor) checkDrift(ctx context.Context) {
	observed, err := s.controller.ObserveState(ctx)
	if err != nil {
		s.health.Report(healthComponent, health.Degraded, err)
		return
	}

	desired := s.controller.desired
	wantObserved := ObservedState{URL: desired.URL, Width: desired.Width, Height: desired.Height, InScene: true}

	if diff := cmp.Diff(wantObserved, observed); diff != "" {
		metrics.ObsDriftDetected.Inc()
		s.health.RecordRepair(healthComponent, "drift detected: "+diff)

		if err := s.controller.EnsureSceneAndSource(ctx, desired); err != nil {
			s.health.Report(healthComponent, health.Degraded, err)
			return
		}
		if err := s.controller.RefreshBrowserSource(ctx); err != nil {
			s.health.Report(healthComponent, health.Degraded, err)
			return
		}

		recheck, err := s.controller.ObserveState(ctx)
		if err != nil || cmp.Diff(wantObserved, recheck) != "" {
			s.health.Report(healthComponent, health.Degraded, fmt.Errorf("drift repair incomplete"))
			return
		}
	}

	s.health.Report(healthComponent, health.Healthy, nil)
}
