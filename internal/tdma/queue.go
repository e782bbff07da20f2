// internal/tdma/queue.go
package tdma

// fifo is a bounded, scheduler-owned queue. Pushing onto a full queue
// fails; the caller decides whether that is a drop or a refusal.
type fifo[T any] struct {
	items []T
	max   int
}

func newFifo[T any](max int) *fifo[T] {
	return &fifo[T]{max: max}
}

func (q *fifo[T]) push(v T) bool {
	if len(q.items) >= q.max {
		return false
	}
	q.items = append(q.items, v)
	return true
}

func (q *fifo[T]) peek() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[0], true
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// drain empties the queue and returns everything that was in it.
func (q *fifo[T]) drain() []T {
	out := q.items
	q.items = nil
	return out
}

func (q *fifo[T]) len() int { return len(q.items) }

func (q *fifo[T]) reset() { q.items = nil }
