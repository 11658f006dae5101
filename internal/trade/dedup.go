package trade

// DedupWindow is a bounded, insertion-ordered set of previously-seen
// trade identifiers. Each strategy driver owns its own window, so the
// same physical trade is deduplicated independently per consumer.
//
// When the set exceeds maxSeen it is rebuilt keeping only the last
// maxSeen/2 insertion-ordered entries. That halving compaction is a
// coarser eviction than true LRU: exact recency within the discarded
// half is not distinguished.
type DedupWindow struct {
	maxSeen int
	seen    map[string]struct{}
	order   []string
}

// DefaultMaxSeen bounds a window when no capacity is given.
const DefaultMaxSeen = 5000

// NewDedupWindow creates a window bounded at maxSeen identifiers.
func NewDedupWindow(maxSeen int) *DedupWindow {
	if maxSeen <= 0 {
		maxSeen = DefaultMaxSeen
	}
	return &DedupWindow{
		maxSeen: maxSeen,
		seen:    make(map[string]struct{}),
	}
}

// HasSeen reports whether id was marked before. Empty identifiers are
// never tracked and always report unseen.
func (w *DedupWindow) HasSeen(id string) bool {
	if id == "" {
		return false
	}
	_, ok := w.seen[id]
	return ok
}

// MarkSeen inserts id, compacting the window when it grows past
// capacity. Marking an already-seen id does not change its insertion
// position.
func (w *DedupWindow) MarkSeen(id string) {
	if id == "" {
		return
	}
	if _, ok := w.seen[id]; ok {
		return
	}

	w.seen[id] = struct{}{}
	w.order = append(w.order, id)

	if len(w.order) > w.maxSeen {
		w.compact()
	}
}

// Len returns the number of tracked identifiers.
func (w *DedupWindow) Len() int {
	return len(w.order)
}

// Clear drops all tracked identifiers.
func (w *DedupWindow) Clear() {
	w.seen = make(map[string]struct{})
	w.order = nil
}

// compact rebuilds the window keeping the most recently inserted half.
func (w *DedupWindow) compact() {
	keep := w.maxSeen / 2
	if keep < 1 {
		keep = 1
	}

	kept := w.order[len(w.order)-keep:]
	seen := make(map[string]struct{}, keep)
	order := make([]string, keep)
	copy(order, kept)
	for _, id := range order {
		seen[id] = struct{}{}
	}

	w.seen = seen
	w.order = order
}
