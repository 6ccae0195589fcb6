// Package queue implements ClipQueue: a thread-safe FIFO of pending
// clips plus a last-played slot, in the same guarded-struct idiom used
// throughout this codebase's other concurrency-sensitive types.
package queue

import (
	"sync"

	"github.com/cliparino/cliparino/internal/clip"
	"github.com/cliparino/cliparino/pkg/metrics"
)

// ClipQueue is a strict-FIFO queue of clip.QueueEntry plus an
// independent last-played slot. All operations are safe under
// concurrent producers and a single consumer.
type ClipQueue struct {
	mu         sync.Mutex
	entries    []clip.QueueEntry
	lastPlayed *clip.Clip
}

// New returns an empty ClipQueue.
func New() *ClipQueue {
	return &ClipQueue{}
}

// Enqueue appends entry to the tail and returns the resulting length.
func (q *ClipQueue) Enqueue(entry clip.QueueEntry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, entry)
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return len(q.entries)
}

// EnqueueAtHead inserts entry at the head of the queue — used for
// failed-playback retry and replay, which re-enter via the same FIFO,
// not a priority lane.
func (q *ClipQueue) EnqueueAtHead(entry clip.QueueEntry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append([]clip.QueueEntry{entry}, q.entries...)
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return len(q.entries)
}

// Dequeue removes and returns the head entry, or ok=false if empty.
func (q *ClipQueue) Dequeue() (clip.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return clip.QueueEntry{}, false
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]
	metrics.QueueDepth.Set(float64(len(q.entries)))
	return entry, true
}

// Peek returns the head entry without removing it.
func (q *ClipQueue) Peek() (clip.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return clip.QueueEntry{}, false
	}
	return q.entries[0], true
}

// LastPlayed returns the last successfully played clip, or ok=false if
// none has played yet.
func (q *ClipQueue) LastPlayed() (clip.Clip, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lastPlayed == nil {
		return clip.Clip{}, false
	}
	return *q.lastPlayed, true
}

// SetLastPlayed atomically replaces the last-played slot.
func (q *ClipQueue) SetLastPlayed(c clip.Clip) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cp := c
	q.lastPlayed = &cp
}

// Count returns the current queue length.
func (q *ClipQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}
