package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/bman/internal/docpack"
)

var _ docpack.Clock = (*FixedClock)(nil)

func TestFixedClock_DefaultsToEpoch(t *testing.T) {
	clock := NewFixedClock(time.Time{})
	assert.Equal(t, DefaultEpoch, clock.Now())
	assert.Equal(t, int64(1_700_000_000_000), clock.Millis())
}

func TestFixedClock_StandsStillUntilAdvanced(t *testing.T) {
	start := time.UnixMilli(5000)
	clock := NewFixedClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())

	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, int64(5250), clock.Millis())
	assert.Equal(t, int64(5250), docpack.NowMillis(clock))
}

func TestFixedClock_ThreadSafe(t *testing.T) {
	clock := NewFixedClock(time.UnixMilli(0))
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines), clock.Millis())
}
