package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()
	assert.Equal(t, time.UTC, got.Location())
	assert.WithinRange(t, got, before, time.Now().Add(time.Second))
}
