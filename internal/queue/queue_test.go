package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliparino/cliparino/internal/clip"
)

func TestEnqueueDequeueIsFIFO(t *testing.T) {
	q := New()
	q.Enqueue(clip.QueueEntry{Clip: clip.Clip{ID: "a"}})
	q.Enqueue(clip.QueueEntry{Clip: clip.Clip{ID: "b"}})

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", first.Clip.ID)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", second.Clip.ID)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestEnqueueAtHeadJumpsQueue(t *testing.T) {
	q := New()
	q.Enqueue(clip.QueueEntry{Clip: clip.Clip{ID: "a"}})
	q.EnqueueAtHead(clip.QueueEntry{Clip: clip.Clip{ID: "priority"}})

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "priority", first.Clip.ID)
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New()
	q.Enqueue(clip.QueueEntry{Clip: clip.Clip{ID: "a"}})

	peeked, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", peeked.Clip.ID)
	assert.Equal(t, 1, q.Count())
}

func TestLastPlayedRoundTrip(t *testing.T) {
	q := New()
	_, ok := q.LastPlayed()
	assert.False(t, ok)

	q.SetLastPlayed(clip.Clip{ID: "played"})
	last, ok := q.LastPlayed()
	require.True(t, ok)
	assert.Equal(t, "played", last.ID)
}

func TestCountReflectsQueueLength(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Count())
	q.Enqueue(clip.QueueEntry{})
	q.Enqueue(clip.QueueEntry{})
	assert.Equal(t, 2, q.Count())
	q.Dequeue()
	assert.Equal(t, 1, q.Count())
}

func TestConcurrentEnqueueIsSafe(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.Enqueue(clip.QueueEntry{Clip: clip.Clip{ID: "c"}})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, q.Count())
}
