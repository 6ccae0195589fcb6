// Package clip holds the Clip and QueueEntry data types shared by the
// queue, playback engine, search service, and shoutout pipeline.
package clip

import "time"

// Source tags where a QueueEntry originated from.
type Source string

const (
	SourceWatch    Source = "watch"
	SourceShoutout Source = "shoutout"
	SourceReplay   Source = "replay"
	SourceSearch   Source = "search"
)

// Clip is the atomic playback unit. It is immutable once constructed.
type Clip struct {
	ID              string
	EmbedURL        string
	Title           string
	BroadcasterName string
	BroadcasterID   string
	CreatorName     string
	GameName        string
	DurationSeconds float64
	ViewCount       int
	Featured        bool
	CreatedAt       time.Time
}

// QuarantineLimit is the failure count at which a QueueEntry is dropped
// rather than re-enqueued.
const QuarantineLimit = 3

// QueueEntry wraps a Clip with queue bookkeeping. FailureCount only ever
// increases; at QuarantineLimit the entry is quarantined.
type QueueEntry struct {
	Clip         Clip
	EnqueuedAt   time.Time
	FailureCount int
	Source       Source
}

// Quarantined reports whether the entry has exhausted its retry budget.
func (e QueueEntry) Quarantined() bool {
	return e.FailureCount >= QuarantineLimit
}
