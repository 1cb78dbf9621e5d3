package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) SweepExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestRun_SweepsUntilCancelled(t *testing.T) {
	s := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, s, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_KeepsGoingAfterErrors(t *testing.T) {
	s := &countingSweeper{err: errors.New("database is locked")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, s, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return s.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRun_NonPositiveIntervalReturns(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Minute} {
		s := &countingSweeper{}

		done := make(chan struct{})
		go func() {
			Run(context.Background(), s, interval)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Run(%v) did not return", interval)
		}
		assert.Zero(t, s.calls.Load())
	}
}
