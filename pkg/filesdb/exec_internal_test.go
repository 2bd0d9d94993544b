package filesdb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func Test_LoopExecutor_Runs_Calls_One_At_A_Time(t *testing.T) {
	t.Parallel()

	exec := newLoopExecutor()
	t.Cleanup(exec.close)

	var (
		active  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	for range 64 {
		wg.Go(func() {
			_ = exec.do(t.Context(), func() error {
				if active.Add(1) > 1 {
					overlap.Store(true)
				}

				active.Add(-1)

				return nil
			})
		})
	}

	wg.Wait()

	if overlap.Load() {
		t.Fatal("calls overlapped on the I/O goroutine")
	}
}

func Test_LoopExecutor_Returns_Error_When_Context_Done_Or_Closed(t *testing.T) {
	t.Parallel()

	exec := newLoopExecutor()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	ran := false

	err := exec.do(ctx, func() error {
		ran = true

		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want %v", err, context.Canceled)
	}

	exec.close()
	exec.close()

	err = exec.do(t.Context(), func() error {
		ran = true

		return nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("after close: err=%v, want %v", err, ErrClosed)
	}

	if ran {
		t.Fatal("fn ran although it was never dispatched")
	}
}
