// Package dispatcher provides the three job queues shared by the validator and
// the chain store: a serialized writer queue, a parallel reader pool and an
// unordered background pool.
package dispatcher

import (
	"runtime"

	"github.com/bitcoin-sv/chaincore/errors"
	"github.com/bitcoin-sv/chaincore/ulogger"
	"github.com/bitcoin-sv/chaincore/util"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	// Submit schedules job and fails with ERR_SERVICE_STOPPED once the
	// dispatcher has been stopped. Submit never blocks.
	Submit(job func()) error
}

// Pool is a Queue whose jobs run on Size concurrent workers.
type Pool interface {
	Queue
	Size() int
}

type Dispatcher struct {
	logger     ulogger.Logger
	stopped    *atomic.Bool
	writer     *pool
	reader     *pool
	background *pool
}

// New starts a dispatcher with workers parallel workers for the reader and
// background pools, runtime.NumCPU() when workers is not positive. The writer
// queue always has exactly one worker, so its jobs run one at a time in
// submission order.
func New(logger ulogger.Logger, workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	stopped := atomic.NewBool(false)

	d := &Dispatcher{
		logger:     logger,
		stopped:    stopped,
		writer:     newPool("writer", 1, stopped),
		reader:     newPool("reader", workers, stopped),
		background: newPool("background", workers, stopped),
	}

	logger.Infof("[Dispatcher] started with %d workers", workers)

	return d
}

// Writer returns the serialized queue.
func (d *Dispatcher) Writer() Queue {
	return d.writer
}

// Reader returns the parallel pool used for reads and validation buckets.
func (d *Dispatcher) Reader() Pool {
	return d.reader
}

// Background returns the pool for unordered fire and forget work.
func (d *Dispatcher) Background() Queue {
	return d.background
}

// Size is the number of parallel workers.
func (d *Dispatcher) Size() int {
	return d.reader.size
}

// Pending returns the number of queued jobs that have not started yet.
func (d *Dispatcher) Pending() int64 {
	return d.writer.queue.len() + d.reader.queue.len() + d.background.queue.len()
}

func (d *Dispatcher) Stopped() bool {
	return d.stopped.Load()
}

// Stop rejects further submissions, runs the jobs already queued and waits for
// all workers to exit. It is safe to call more than once but must not be called
// from a dispatcher job.
func (d *Dispatcher) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}

	d.logger.Infof("[Dispatcher] stopping, %d jobs pending", d.Pending())

	for _, p := range []*pool{d.writer, d.reader, d.background} {
		p.stop()
	}
}

type pool struct {
	name    string
	size    int
	stopped *atomic.Bool
	queue   *jobQueue
	wake    chan struct{}
	done    chan struct{}
	jobs    chan func()
	g       errgroup.Group
}

func newPool(name string, size int, stopped *atomic.Bool) *pool {
	p := &pool{
		name:    name,
		size:    size,
		stopped: stopped,
		queue:   newJobQueue(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		jobs:    make(chan func()),
	}

	// feeder plus workers
	util.SafeSetLimit(&p.g, size+1)

	p.g.Go(p.feed)

	for i := 0; i < size; i++ {
		p.g.Go(p.work)
	}

	return p
}

func (p *pool) Size() int {
	return p.size
}

func (p *pool) Submit(job func()) error {
	if p.stopped.Load() {
		return errors.NewServiceStoppedError("%s queue is stopped", p.name)
	}

	p.queue.enqueue(job)

	select {
	case p.wake <- struct{}{}:
	default:
	}

	return nil
}

// feed is the only consumer of the queue.
func (p *pool) feed() error {
	defer close(p.jobs)

	for {
		for job := p.queue.dequeue(); job != nil; job = p.queue.dequeue() {
			p.jobs <- job
		}

		select {
		case <-p.wake:
		case <-p.done:
			// submissions raced with stop may still be queued
			for job := p.queue.dequeue(); job != nil; job = p.queue.dequeue() {
				p.jobs <- job
			}

			return nil
		}
	}
}

func (p *pool) work() error {
	for job := range p.jobs {
		job()
	}

	return nil
}

func (p *pool) stop() {
	close(p.done)
	_ = p.g.Wait()
}
