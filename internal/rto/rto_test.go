package rto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedule(t *testing.T) {
	offsets := Schedule(500*time.Millisecond, 7)
	assert.Len(t, offsets, 6, "Rc=7 means 6 scheduled retransmissions after the initial send")

	// RFC 5389 §7.2.1: each retransmission doubles the previous interval.
	expected := []time.Duration{
		500 * time.Millisecond,
		1500 * time.Millisecond,
		3500 * time.Millisecond,
		7500 * time.Millisecond,
		15500 * time.Millisecond,
		31500 * time.Millisecond,
	}
	assert.Equal(t, expected, offsets)
}

func TestFinalTimeout(t *testing.T) {
	assert.Equal(t, 8*time.Second, FinalTimeout(500*time.Millisecond))
}

func TestTimerRetransmitsThenTimesOut(t *testing.T) {
	// A tight schedule so the test finishes quickly: Rc=2 means exactly
	// one scheduled retransmission before the final failure window.
	timer := NewTimer(2*time.Millisecond, 2)
	defer timer.Stop()

	<-timer.C()
	assert.True(t, timer.Fired(), "first scheduled retransmission tick")

	<-timer.C()
	assert.False(t, timer.Fired(), "final failure window tick reports timeout")
}

func TestTimerStopSuppressesFurtherTicks(t *testing.T) {
	timer := NewTimer(50*time.Millisecond, 2)
	timer.Stop()
	timer.Stop() // must be idempotent

	select {
	case <-timer.C():
		t.Fatal("stopped timer must not still be pending to fire imminently")
	case <-time.After(70 * time.Millisecond):
	}
}
