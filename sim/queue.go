package sim

import (
	"container/heap"
	"time"
)

// fillEvent is a scheduled settlement for one order.
type fillEvent struct {
	due     time.Time
	seq     uint64
	orderID string
}

// eventQueue is a min-heap on (due, seq); seq keeps submission order for
// events due at the same instant.
type eventQueue []fillEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(fillEvent)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}

func (q *eventQueue) schedule(ev fillEvent) { heap.Push(q, ev) }

// popDue removes and returns the next event due at or before now.
func (q *eventQueue) popDue(now time.Time) (fillEvent, bool) {
	if q.Len() == 0 || (*q)[0].due.After(now) {
		return fillEvent{}, false
	}
	return heap.Pop(q).(fillEvent), true
}
