package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodBoundsCoverCalendarMonth(t *testing.T) {
	now := time.Date(2025, 6, 17, 14, 30, 0, 0, time.UTC)
	start, end := periodBounds(now)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestPeriodBoundsDecemberRollsOver(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	start, end := periodBounds(now)
	assert.Equal(t, time.December, start.Month())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}
