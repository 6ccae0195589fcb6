package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStoresStatusAndError(t *testing.T) {
	r := NewReporter()
	r.Report("obs", Degraded, errors.New("drift detected"))

	snap, ok := r.Snapshot("obs")
	require.True(t, ok)
	assert.Equal(t, Degraded, snap.Status)
	assert.Equal(t, "drift detected", snap.LastError)
	require.Len(t, snap.RepairLog, 1)
	assert.Contains(t, snap.RepairLog[0], "status=Degraded")
}

func TestReportHealthyClearsLastError(t *testing.T) {
	r := NewReporter()
	r.Report("obs", Unhealthy, errors.New("boom"))
	r.Report("obs", Healthy, nil)

	snap, ok := r.Snapshot("obs")
	require.True(t, ok)
	assert.Equal(t, Healthy, snap.Status)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, "recovered", snap.RepairLog[len(snap.RepairLog)-1])
}

func TestSnapshotUnknownComponent(t *testing.T) {
	r := NewReporter()
	_, ok := r.Snapshot("nonexistent")
	assert.False(t, ok)
}

func TestRecordRepairAppendsWithoutChangingStatus(t *testing.T) {
	r := NewReporter()
	r.Report("obs", Healthy, nil)
	r.RecordRepair("obs", "refreshed browser source")

	snap, ok := r.Snapshot("obs")
	require.True(t, ok)
	assert.Equal(t, Healthy, snap.Status)
	assert.Contains(t, snap.RepairLog, "refreshed browser source")
}

func TestAggregateReflectsWorstComponent(t *testing.T) {
	r := NewReporter()
	assert.Equal(t, Unknown, r.Aggregate())

	r.Report("obs", Healthy, nil)
	assert.Equal(t, Healthy, r.Aggregate())

	r.Report("twitch_events", Degraded, nil)
	assert.Equal(t, Degraded, r.Aggregate())

	r.Report("approval", Unhealthy, errors.New("fail"))
	assert.Equal(t, Unhealthy, r.Aggregate())
}

func TestRingBufferBoundsRepairLog(t *testing.T) {
	r := NewReporter()
	for i := 0; i < ringBufferSize+10; i++ {
		r.RecordRepair("obs", "event")
	}

	snap, ok := r.Snapshot("obs")
	require.True(t, ok)
	assert.LessOrEqual(t, len(snap.RepairLog), ringBufferSize)
}

func TestAllReturnsEveryComponent(t *testing.T) {
	r := NewReporter()
	r.Report("obs", Healthy, nil)
	r.Report("twitch_events", Degraded, nil)

	all := r.All()
	assert.Len(t, all, 2)
	assert.Equal(t, Healthy, all["obs"].Status)
}
