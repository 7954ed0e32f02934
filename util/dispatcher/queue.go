package dispatcher

import (
	"sync/atomic"
)

type node struct {
	job  func()
	next atomic.Pointer[node]
}

// jobQueue is an unbounded FIFO. Enqueue is safe for concurrent use, dequeue
// must only be called by the single feeder goroutine that owns the queue.
// See https://www.cs.rochester.edu/research/synchronization/pseudocode/queues.html
type jobQueue struct {
	tail   atomic.Pointer[node]
	head   *node
	length atomic.Int64
}

func newJobQueue() *jobQueue {
	q := &jobQueue{head: &node{}}
	q.tail.Store(q.head)

	return q
}

func (q *jobQueue) enqueue(job func()) {
	n := &node{job: job}

	prev := q.tail.Swap(n)
	prev.next.Store(n)

	q.length.Add(1)
}

// dequeue returns nil when the queue is empty.
func (q *jobQueue) dequeue() func() {
	next := q.head.next.Load()
	if next == nil {
		return nil
	}

	q.head = next
	q.length.Add(-1)

	job := next.job
	next.job = nil

	return job
}

func (q *jobQueue) len() int64 {
	return q.length.Load()
}
