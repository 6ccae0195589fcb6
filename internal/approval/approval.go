// Package approval implements the ApprovalGate (C11): a pending-request
// registry gating searched clips behind mod approval, in the same
// guarded-map idiom as internal/health and pkg/twitch's CircuitBreaker.
package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cliparino/cliparino/internal/clip"
)

// Verdict is the resolution a moderator or broadcaster gives a request.
type Verdict string

const (
	Approved Verdict = "Approved"
	Denied   Verdict = "Denied"
)

// Status is a request's lifecycle state.
type Status string

const (
	Pending Status = "Pending"
	Resolved Status = "Resolved"
	Expired Status = "Expired"
)

// DefaultTimeout is used when Open is called with timeout<=0.
const DefaultTimeout = 30 * time.Second

// ErrUnauthorized is returned when the resolving actor lacks the
// broadcaster or moderator badge.
var ErrUnauthorized = errors.New("approval: actor not authorized to resolve requests")

// ErrNotFound is returned when the id names no request, including one
// already resolved or expired and swept.
var ErrNotFound = errors.New("approval: request not found")

// ErrNotPending is returned when the request already reached a terminal
// state.
var ErrNotPending = errors.New("approval: request is no longer pending")

// ErrExpired is returned when the request's deadline has passed.
var ErrExpired = errors.New("approval: request has expired")

// Request is a single pending or resolved approval.
type Request struct {
	ID        string
	Clip      clip.Clip
	Requester string
	OpenedAt  time.Time
	Deadline  time.Time
	Status    Status
	Verdict   Verdict
}

// Gate holds every pending approval request; a request is removed as
// soon as it is resolved or expires.
type Gate struct {
	mu       sync.Mutex
	requests map[string]*Request
}

// New returns an empty Gate.
func New() *Gate {
	return &Gate{requests: make(map[string]*Request)}
}

// Open registers a new pending request for clip on behalf of requester,
// returning its short id and expiry deadline.
func (g *Gate) Open(c clip.Clip, requester string, timeout time.Duration) (string, time.Time) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	now := time.Now()
	id := shortID()
	req := &Request{
		ID:        id,
		Clip:      c,
		Requester: requester,
		OpenedAt:  now,
		Deadline:  now.Add(timeout),
		Status:    Pending,
	}

	g.mu.Lock()
	g.requests[id] = req
	g.mu.Unlock()

	return id, req.Deadline
}

// Resolve applies verdict to the pending request id, on behalf of
// actor. It fails unless actorAuthorized is true, the request is still
// Pending, and now is before its deadline. On Approved it returns the
// stored clip; on Denied it returns a zero clip and no error.
func (g *Gate) Resolve(id string, verdict Verdict, actorAuthorized bool) (clip.Clip, error) {
	if !actorAuthorized {
		return clip.Clip{}, ErrUnauthorized
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[id]
	if !ok {
		return clip.Clip{}, ErrNotFound
	}
	if req.Status != Pending {
		return clip.Clip{}, ErrNotPending
	}
	if time.Now().After(req.Deadline) {
		req.Status = Expired
		delete(g.requests, id)
		return clip.Clip{}, ErrExpired
	}

	req.Status = Resolved
	req.Verdict = verdict
	delete(g.requests, id)

	if verdict == Approved {
		return req.Clip, nil
	}
	return clip.Clip{}, nil
}

// Snapshot returns a copy of the request named by id, if still tracked.
func (g *Gate) Snapshot(id string) (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[id]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// SweepExpired removes every Pending request whose deadline has passed,
// returning their ids. Intended to run on a periodic ticker.
func (g *Gate) SweepExpired() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	var expired []string
	for id, req := range g.requests {
		if req.Status == Pending && now.After(req.Deadline) {
			expired = append(expired, id)
			delete(g.requests, id)
		}
	}
	return expired
}

// RunSweeper blocks, sweeping expired requests on interval until ctx is
// canceled.
func (g *Gate) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.SweepExpired()
		case <-ctx.Done():
			return
		}
	}
}

func shortID() string {
	return uuid.New().String()[:8]
}
