package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClockNowUTC ensures the default clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "expected %v between %v and %v", got, before, after)
}

func TestClockNowIn(t *testing.T) {
	t.Parallel()

	sgt := time.FixedZone("SGT", 8*60*60)
	got := NewIn(sgt).Now()
	require.Equal(t, sgt, got.Location())

	require.Equal(t, time.UTC, NewIn(nil).Now().Location())
}
