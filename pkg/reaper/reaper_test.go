package reaper

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls int32
	err   error
}

func (f *fakeSweeper) Sweep() (int, int, error) {
	atomic.AddInt32(&f.calls, 1)
	return 1, 2, f.err
}

func TestReaperSweepsOnTick(t *testing.T) {
	f := &fakeSweeper{}
	r := New(f, 10*time.Millisecond)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.calls) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestReaperDisabledWithZeroInterval(t *testing.T) {
	f := &fakeSweeper{}
	r := New(f, 0)
	r.Start()
	defer r.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.calls))
}

func TestReaperStopEndsLoop(t *testing.T) {
	f := &fakeSweeper{}
	r := New(f, 5*time.Millisecond)
	r.Start()
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	callsAtStop := atomic.LoadInt32(&f.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, callsAtStop, atomic.LoadInt32(&f.calls))
}
