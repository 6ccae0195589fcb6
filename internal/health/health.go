// Package health implements the HealthReporter: a mutex-protected status
// map with a bounded per-component repair-action ring buffer, in the
// same guarded-map idiom as pkg/twitch's CircuitBreaker.
package health

import (
	"sync"
	"time"

	"github.com/cliparino/cliparino/pkg/metrics"
)

// Status is a component's health classification.
type Status string

const (
	Healthy   Status = "Healthy"
	Degraded  Status = "Degraded"
	Unhealthy Status = "Unhealthy"
	Unknown   Status = "Unknown"
)

const ringBufferSize = 20

// ComponentHealth is the per-component record HealthReporter maintains.
type ComponentHealth struct {
	Status     Status
	LastCheck  time.Time
	LastError  string
	RepairLog  []string
}

// Reporter aggregates health across every named component
// (obs, twitch, eventsource, playback, approval, ...).
type Reporter struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
}

// NewReporter returns an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{components: make(map[string]*ComponentHealth)}
}

// Report overwrites a component's current status and stamps the time. A
// non-Healthy status appends "status=<s>: <error>" to the repair log; a
// Healthy status appends "recovered".
func (r *Reporter) Report(component string, status Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.components[component]
	if ch == nil {
		ch = &ComponentHealth{}
		r.components[component] = ch
	}

	ch.Status = status
	ch.LastCheck = time.Now()
	if err != nil {
		ch.LastError = err.Error()
	} else {
		ch.LastError = ""
	}

	var entry string
	if status == Healthy {
		entry = "recovered"
	} else if err != nil {
		entry = "status=" + string(status) + ": " + err.Error()
	} else {
		entry = "status=" + string(status)
	}
	ch.RepairLog = appendBounded(ch.RepairLog, entry)

	metrics.ComponentHealth.WithLabelValues(component).Set(metrics.HealthStatusValue(string(status)))
}

// RecordRepair appends an action to the component's repair log without
// changing its status.
func (r *Reporter) RecordRepair(component, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := r.components[component]
	if ch == nil {
		ch = &ComponentHealth{Status: Unknown}
		r.components[component] = ch
	}
	ch.RepairLog = appendBounded(ch.RepairLog, action)
}

// Aggregate returns the system-wide status: Unhealthy if any component
// is Unhealthy, else Degraded if any is Degraded, else Healthy if any is
// Healthy, else Unknown.
func (r *Reporter) Aggregate() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sawHealthy := false
	sawDegraded := false
	for _, ch := range r.components {
		switch ch.Status {
		case Unhealthy:
			return Unhealthy
		case Degraded:
			sawDegraded = true
		case Healthy:
			sawHealthy = true
		}
	}
	if sawDegraded {
		return Degraded
	}
	if sawHealthy {
		return Healthy
	}
	return Unknown
}

// Snapshot returns a copy of a component's current health, and whether
// the component is known.
func (r *Reporter) Snapshot(component string) (ComponentHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.components[component]
	if !ok {
		return ComponentHealth{}, false
	}
	cp := *ch
	cp.RepairLog = append([]string(nil), ch.RepairLog...)
	return cp, true
}

// All returns a snapshot of every tracked component, keyed by name.
func (r *Reporter) All() map[string]ComponentHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ComponentHealth, len(r.components))
	for name, ch := range r.components {
		cp := *ch
		cp.RepairLog = append([]string(nil), ch.RepairLog...)
		out[name] = cp
	}
	return out
}

func appendBounded(log []string, entry string) []string {
	log = append(log, entry)
	if len(log) > ringBufferSize {
		log = log[len(log)-ringBufferSize:]
	}
	return log
}
