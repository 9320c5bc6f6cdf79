package session

import "sync"

// MinDedupCapacity is the smallest window a Dedup will keep.
const MinDedupCapacity = 4096

// Dedup remembers the most recent client message IDs. A repeat is reported
// as long as the ID is among the last Capacity insertions.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	next int
	size int
}

// NewDedup creates a Dedup holding up to capacity IDs, raised to
// MinDedupCapacity if lower.
func NewDedup(capacity int) *Dedup {
	if capacity < MinDedupCapacity {
		capacity = MinDedupCapacity
	}
	return &Dedup{
		seen: make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// MarkSeen records id and reports whether it was new.
func (d *Dedup) MarkSeen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}
	if d.size == len(d.ring) {
		delete(d.seen, d.ring[d.next])
	} else {
		d.size++
	}
	d.ring[d.next] = id
	d.next = (d.next + 1) % len(d.ring)
	d.seen[id] = struct{}{}
	return true
}

// Clear forgets every ID.
func (d *Dedup) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.seen)
	clear(d.ring)
	d.next = 0
	d.size = 0
}

// Len returns the number of remembered IDs.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Capacity returns the eviction window.
func (d *Dedup) Capacity() int {
	return len(d.ring)
}
