package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuarantinedBelowLimit(t *testing.T) {
	e := QueueEntry{FailureCount: QuarantineLimit - 1}
	assert.False(t, e.Quarantined())
}

func TestQuarantinedAtLimit(t *testing.T) {
	e := QueueEntry{FailureCount: QuarantineLimit}
	assert.True(t, e.Quarantined())
}

func TestQuarantinedAboveLimit(t *testing.T) {
	e := QueueEntry{FailureCount: QuarantineLimit + 5}
	assert.True(t, e.Quarantined())
}
