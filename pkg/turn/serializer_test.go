package turn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializer_RunsImmediatelyWhenIdle(t *testing.T) {
	s := New()
	ran := make(chan struct{})
	errCh := s.EnqueueTurn(context.Background(), "call-1", func(ctx context.Context) error {
		close(ran)
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	require.NoError(t, <-errCh)
}

func TestSerializer_AtMostOneInFlightPerCall(t *testing.T) {
	s := New()
	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			errCh := s.EnqueueTurn(context.Background(), "call-shared", func(ctx context.Context) error {
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxObserved)
					if cur <= old || atomic.CompareAndSwapInt32(&maxObserved, old, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			<-errCh
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxObserved, "at most one turn must run at a time per call")
}

func TestSerializer_FailurePropagatesWithoutBlockingNext(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	first := s.EnqueueTurn(context.Background(), "call-2", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, <-first, boom)

	ran := make(chan struct{})
	second := s.EnqueueTurn(context.Background(), "call-2", func(ctx context.Context) error {
		close(ran)
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("second task should still run after first failed")
	}
	require.NoError(t, <-second)
}

func TestSerializer_CancelDropsQueuedTasks(t *testing.T) {
	s := New()
	block := make(chan struct{})
	firstStarted := make(chan struct{})

	s.EnqueueTurn(context.Background(), "call-3", func(ctx context.Context) error {
		close(firstStarted)
		<-block
		return nil
	})
	<-firstStarted

	var secondRan int32
	s.EnqueueTurn(context.Background(), "call-3", func(ctx context.Context) error {
		atomic.AddInt32(&secondRan, 1)
		return nil
	})

	s.Cancel("call-3")
	close(block)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&secondRan), "cancelled queue must not execute pending tasks")
}
