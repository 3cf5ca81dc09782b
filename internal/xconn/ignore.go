package xconn

// ignoreEntry is one link of the serial-ignore FIFO described in spec
// section 9: "the ignore_head/ignore_tail FIFO is a ring of (sequence,
// next) pairs; replace with a small VecDeque keyed by serial." We use a
// plain slice-backed queue; the "ring of (sequence, next) pairs" shape is
// preserved conceptually (each push appends, each pop from the front),
// just without a hand-rolled linked list.
type ignoreEntry struct {
	serial uint32
}

// IgnoreQueue tracks request serials whose resulting X error, if any, is
// expected and must be suppressed rather than logged as unexpected. This
// happens for operations issued against a window that may already be
// destroyed by the time the request reaches the server.
type IgnoreQueue struct {
	entries []ignoreEntry
}

// Push records that serial's error (if any) should be ignored.
func (q *IgnoreQueue) Push(serial uint32) {
	q.entries = append(q.entries, ignoreEntry{serial: serial})
}

// serialLess compares sequence numbers with wraparound, per spec section
// 9: "Serial arithmetic is modulo 2^32 -- use wrapping comparisons."
func serialLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// ShouldIgnore reports whether serial's error should be suppressed,
// dropping every queued entry older than serial in the process (those
// requests either already succeeded or their error window has passed).
func (q *IgnoreQueue) ShouldIgnore(serial uint32) bool {
	for len(q.entries) > 0 && serialLess(q.entries[0].serial, serial) {
		q.entries = q.entries[1:]
	}
	if len(q.entries) == 0 {
		return false
	}
	if q.entries[0].serial == serial {
		q.entries = q.entries[1:]
		return true
	}
	return false
}
