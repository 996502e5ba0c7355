package app

import "sync"

// Deduplicator remembers recently seen trade identities in a fixed amount
// of memory. Insertion order is tracked in a ring so that when capacity is
// reached the oldest identity is forgotten first. A forgotten identity can
// be admitted again; capacity should therefore comfortably exceed the
// number of trades one window can hold.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	head int
	size int
}

// NewDeduplicator creates a Deduplicator holding up to capacity identities.
func NewDeduplicator(capacity int) *Deduplicator {
	if capacity < 1 {
		capacity = 1
	}
	return &Deduplicator{
		seen: make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// Admit reports whether the key is new, recording it if so. A repeated key
// returns false until it ages out of the ring.
func (d *Deduplicator) Admit(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false
	}

	if d.size == len(d.ring) {
		delete(d.seen, d.ring[d.head])
	} else {
		d.size++
	}
	d.ring[d.head] = key
	d.head = (d.head + 1) % len(d.ring)
	d.seen[key] = struct{}{}
	return true
}

// Len returns the number of identities currently remembered.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Reset forgets everything.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, len(d.ring))
	d.head = 0
	d.size = 0
}
