package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayGrowsWithAttempt(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Minute, JitterFraction: 0}

	d0 := p.Delay(0)
	d3 := p.Delay(3)

	assert.Equal(t, time.Second, d0)
	assert.Equal(t, 8*time.Second, d3)
}

func TestDelayClampsToMax(t *testing.T) {
	p := Policy{Base: time.Second, Max: 5 * time.Second, JitterFraction: 0}

	d := p.Delay(10)
	assert.Equal(t, 5*time.Second, d)
}

func TestDelayNegativeAttemptTreatedAsZero(t *testing.T) {
	p := Policy{Base: time.Second, Max: time.Minute, JitterFraction: 0}

	assert.Equal(t, p.Delay(0), p.Delay(-5))
}

func TestDelayJitterStaysWithinBounds(t *testing.T) {
	p := Policy{Base: 10 * time.Second, Max: time.Minute, JitterFraction: 0.3}

	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, 7*time.Second)
		assert.LessOrEqual(t, d, 13*time.Second)
	}
}

func TestDelayNeverExceedsVeryLargeAttempt(t *testing.T) {
	p := Default
	assert.NotPanics(t, func() {
		d := p.Delay(1000)
		assert.LessOrEqual(t, d, p.Max+time.Duration(float64(p.Max)*p.JitterFraction)+time.Second)
	})
}
