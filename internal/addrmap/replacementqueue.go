package addrmap

import (
	"container/list"
	"net/netip"
)

// record is one dynamic assignment, shared between the forward/reverse
// index and the replacement queue.
type record struct {
	v4        netip.Addr
	v6        netip.Addr
	lastHitAt int64 // monotonic nanoseconds, see monotonicNow
	elem      *list.Element
}

// replacementQueue orders records by last-hit time, oldest first. Because
// lastHitAt is taken from a monotonic clock and every hit moves its record
// to the back, the list stays sorted without needing a separate sorted-map
// structure: this is the same doubly-linked-list shape gcache uses
// internally for LRU (see DESIGN.md for why gcache itself was not reused
// here). Grounded on the SortedDict-keyed-by-timestamp multimap in
// _DynamicSubstituteAddressMapper.py; spec §9 notes either shape is
// acceptable.
type replacementQueue struct {
	list *list.List
}

func newReplacementQueue() *replacementQueue {
	return &replacementQueue{list: list.New()}
}

// pushBack inserts r as the most-recently-hit record.
func (q *replacementQueue) pushBack(r *record) {
	r.elem = q.list.PushBack(r)
}

// touch moves r to the back, marking it as freshly hit.
func (q *replacementQueue) touch(r *record) {
	q.list.MoveToBack(r.elem)
}

// remove removes r from the queue.
func (q *replacementQueue) remove(r *record) {
	q.list.Remove(r.elem)
	r.elem = nil
}

// oldest returns the least-recently-hit record, or nil if the queue is
// empty.
func (q *replacementQueue) oldest() *record {
	front := q.list.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*record)
}

// ascending calls fn for every record in ascending last-hit order (oldest
// first), matching send_dynamic_mappings_to_generator's iteration order.
func (q *replacementQueue) ascending(fn func(*record)) {
	for e := q.list.Front(); e != nil; e = e.Next() {
		fn(e.Value.(*record))
	}
}
