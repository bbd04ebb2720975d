package vending

// DefaultCacheCapacity is the number of recent cmd_ids remembered per device.
const DefaultCacheCapacity = 100

// RecordedOutcome is the ack status and error of a command's first run.
type RecordedOutcome struct {
	Status AckStatus
	Error  *AckError
}

// IdempotencyCache remembers the most recent command IDs in insertion
// order, with the outcome of their first run. When full, adding a new ID
// evicts the oldest. Seen, Add, Complete and Lookup are O(1).
//
// Not safe for concurrent use; each device actor owns one.
type IdempotencyCache struct {
	ring  []string
	next  int
	size  int
	index map[string]RecordedOutcome
}

// NewIdempotencyCache returns an empty cache. Capacities below 1 use
// DefaultCacheCapacity.
func NewIdempotencyCache(capacity int) *IdempotencyCache {
	if capacity < 1 {
		capacity = DefaultCacheCapacity
	}
	return &IdempotencyCache{
		ring:  make([]string, capacity),
		index: make(map[string]RecordedOutcome, capacity),
	}
}

// Seen reports whether id is currently remembered.
func (c *IdempotencyCache) Seen(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Add remembers id with a success outcome until Complete records the
// real one. Adding an id that is already present is a no-op and does not
// refresh its position.
func (c *IdempotencyCache) Add(id string) {
	if c.Seen(id) {
		return
	}
	if c.size == len(c.ring) {
		delete(c.index, c.ring[c.next])
	} else {
		c.size++
	}
	c.ring[c.next] = id
	c.index[id] = RecordedOutcome{Status: AckSuccess}
	c.next = (c.next + 1) % len(c.ring)
}

// Complete records the outcome for a remembered id. Unknown ids are ignored.
func (c *IdempotencyCache) Complete(id string, status AckStatus, ackErr *AckError) {
	if _, ok := c.index[id]; ok {
		c.index[id] = RecordedOutcome{Status: status, Error: ackErr}
	}
}

// Lookup returns the recorded outcome for id.
func (c *IdempotencyCache) Lookup(id string) (RecordedOutcome, bool) {
	o, ok := c.index[id]
	return o, ok
}

// Len returns the number of remembered ids.
func (c *IdempotencyCache) Len() int {
	return c.size
}

// Cap returns the cache capacity.
func (c *IdempotencyCache) Cap() int {
	return len(c.ring)
}
