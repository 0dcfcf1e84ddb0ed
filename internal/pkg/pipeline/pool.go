package pipeline

import (
	"context"
	"sync"

	"github.com/remeh/sizedwaitgroup"

	"github.com/internetarchive/Talos/internal/pkg/controler/pause"
	"github.com/internetarchive/Talos/internal/pkg/log"
)

// TaskError pairs a failed task's input with the error it raised, so the
// caller can route the originating item without any back-mapping.
type TaskError[In any] struct {
	Input In
	Err   error
}

// Pool runs one pipeline stage: a bounded set of goroutines applying the
// same function to every submitted input. Successful outputs land on
// Results, failures on Errors together with the input that caused them. A
// task failure never stops the pool, and Shutdown discards whatever was
// submitted but not yet started.
//
// All three pipeline stages run on this one type; they differ only in
// their task function and worker bound.
type Pool[In, Out any] struct {
	name    string
	workers int
	fn      func(ctx context.Context, in In) (Out, error)

	ctx     context.Context
	tasks   chan In
	results chan Out
	errors  chan TaskError[In]

	pending  sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	logger *log.FieldedLogger
}

// NewPool builds a stage pool. capacity sizes the task, result and error
// queues; with capacity at least the number of inputs a batch will submit,
// no pool operation ever blocks the caller.
func NewPool[In, Out any](name string, workers, capacity int, fn func(ctx context.Context, in In) (Out, error)) *Pool[In, Out] {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}

	return &Pool[In, Out]{
		name:    name,
		workers: workers,
		fn:      fn,
		tasks:   make(chan In, capacity),
		results: make(chan Out, capacity),
		errors:  make(chan TaskError[In], capacity),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger: log.NewFieldedLogger(&log.Fields{
			"component": "pipeline.pool",
			"pool":      name,
		}),
	}
}

// Start launches the dispatcher. The context bounds every task the pool
// will run.
func (p *Pool[In, Out]) Start(ctx context.Context) {
	p.ctx = ctx
	go p.run()
}

// Submit enqueues one input. After Shutdown the input is discarded.
func (p *Pool[In, Out]) Submit(in In) {
	p.pending.Add(1)
	select {
	case <-p.stopCh:
		p.pending.Done()
	case p.tasks <- in:
	}
}

// Results delivers each successful task output exactly once.
func (p *Pool[In, Out]) Results() <-chan Out {
	return p.results
}

// Errors delivers each failed task exactly once, with its input.
func (p *Pool[In, Out]) Errors() <-chan TaskError[In] {
	return p.errors
}

// Drain blocks until every submitted input has been acknowledged, whether
// it succeeded, failed, or was discarded by Shutdown.
func (p *Pool[In, Out]) Drain() {
	p.pending.Wait()
}

// Shutdown stops the dispatcher, discards unstarted inputs, waits for
// in-flight tasks, and closes the result and error queues. Safe to call
// more than once.
func (p *Pool[In, Out]) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
}

// run is the dispatcher: it hands each input to a goroutine bounded by the
// worker count, pausing intake while the pause controller holds the
// pipeline. Closing stopCh is observed between dispatches, so shutdown
// never waits on an idle queue.
func (p *Pool[In, Out]) run() {
	controlChans := pause.Subscribe()
	defer pause.Unsubscribe(controlChans)

	swg := sizedwaitgroup.New(p.workers)

	for {
		select {
		case <-p.stopCh:
			p.discard()
			swg.Wait()
			close(p.results)
			close(p.errors)
			close(p.doneCh)
			return
		case in := <-p.tasks:
			waitIfPaused(p.ctx, controlChans)

			swg.Add()

			// a shutdown issued while we waited for a worker slot
			// discards this task too
			select {
			case <-p.stopCh:
				swg.Done()
				p.logger.Debug("discarding unstarted task")
				p.pending.Done()
				continue
			default:
			}

			go func(in In) {
				defer swg.Done()
				p.execute(in)
			}(in)
		}
	}
}

// discard acknowledges every input still queued, without running it.
func (p *Pool[In, Out]) discard() {
	for {
		select {
		case <-p.tasks:
			p.logger.Debug("discarding unstarted task")
			p.pending.Done()
		default:
			return
		}
	}
}

func (p *Pool[In, Out]) execute(in In) {
	defer p.pending.Done()

	out, err := p.fn(p.ctx, in)
	if err != nil {
		p.errors <- TaskError[In]{Input: in, Err: err}
		return
	}
	p.results <- out
}
