// Package queue provides the bounded hand-off between the reader and the
// consumer of one input file.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pipelined/psrpipe"
)

// DefaultPoll is the interval used to poll a full or empty queue.
const DefaultPoll = time.Millisecond

// Queue is a bounded single-producer single-consumer queue of chunks.
// Both Push and Pop poll with a short sleep instead of blocking on a
// condition. A nil chunk is the end-of-stream sentinel.
type Queue struct {
	mu    sync.Mutex
	items []*psrpipe.Chunk
	depth int
	poll  time.Duration
}

// New returns a queue which holds at most depth chunks. Depth below one is
// treated as one.
func New(depth int, poll time.Duration) *Queue {
	if depth < 1 {
		depth = 1
	}
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &Queue{
		items: make([]*psrpipe.Chunk, 0, depth+1),
		depth: depth,
		poll:  poll,
	}
}

// Push appends a chunk, waiting while the queue is full.
func (q *Queue) Push(ctx context.Context, c *psrpipe.Chunk) error {
	for {
		q.mu.Lock()
		if len(q.items) < q.depth {
			q.items = append(q.items, c)
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()
		if err := q.sleep(ctx); err != nil {
			return err
		}
	}
}

// Close appends the end-of-stream sentinel. The sentinel is never blocked by
// the depth limit so the producer can always finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.items = append(q.items, nil)
	q.mu.Unlock()
}

// Pop removes the oldest chunk, waiting while the queue is empty. A nil
// chunk with nil error means the producer is done.
func (q *Queue) Pop(ctx context.Context) (*psrpipe.Chunk, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return c, nil
		}
		q.mu.Unlock()
		if err := q.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// Len returns the number of queued items, sentinel included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Depth returns the capacity of the queue.
func (q *Queue) Depth() int {
	return q.depth
}

func (q *Queue) sleep(ctx context.Context) error {
	t := time.NewTimer(q.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
