package filesdb

import (
	"context"
	"sync"
)

// executor runs filesystem calls for a handle. Every call is a suspension
// point: the context is checked before dispatch, and a dispatched call always
// runs to completion.
type executor interface {
	do(ctx context.Context, fn func() error) error
	close()
}

// inlineExecutor runs calls on the caller goroutine.
type inlineExecutor struct{}

func (inlineExecutor) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn()
}

func (inlineExecutor) close() {}

// loopExecutor funnels calls through one goroutine, so I/O for a handle never
// runs in parallel while callers interleave freely.
type loopExecutor struct {
	reqs chan ioRequest
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type ioRequest struct {
	fn  func() error
	res chan error
}

func newLoopExecutor() *loopExecutor {
	l := &loopExecutor{
		reqs: make(chan ioRequest),
		done: make(chan struct{}),
	}

	l.wg.Go(l.run)

	return l
}

func (l *loopExecutor) run() {
	for {
		select {
		case req := <-l.reqs:
			req.res <- req.fn()
		case <-l.done:
			return
		}
	}
}

func (l *loopExecutor) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := ioRequest{fn: fn, res: make(chan error, 1)}

	select {
	case l.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}

	return <-req.res
}

// close stops the loop after the call in flight, if any, has finished.
func (l *loopExecutor) close() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}

func newExecutor(mode Mode) executor {
	if mode == ModeSuspending {
		return newLoopExecutor()
	}

	return inlineExecutor{}
}
