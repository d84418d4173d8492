package clock_test

import (
	"testing"
	"time"

	"github.com/apgms/apgms/internal/platform/clock"
	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, 10, 1, 9, 0, 0, 0, time.FixedZone("AEST", 10*3600))
	c := clock.NewFakeClock(start)

	assert.Equal(t, time.UTC, c.Now().Location())
	assert.True(t, c.Now().Equal(start))

	c.Advance(30 * time.Second)
	assert.True(t, c.Now().Equal(start.Add(30*time.Second)))

	later := start.Add(time.Hour)
	c.Set(later)
	assert.True(t, c.Now().Equal(later))
}

func TestSystemClockIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, clock.System{}.Now().Location())
}
