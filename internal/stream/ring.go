package stream

const minRingCapacity = 16

// eventRing is a FIFO ring buffer of events that grows when full.
// It is not safe for concurrent use; Bridge guards it with its own mutex.
type eventRing struct {
	buffer []Event
	read   int
	count  int
}

func newEventRing(capacity int) *eventRing {
	if capacity < minRingCapacity {
		capacity = minRingCapacity
	}
	return &eventRing{buffer: make([]Event, capacity)}
}

// Push appends an event, doubling the capacity if the ring is full
func (r *eventRing) Push(e Event) {
	if r.count == len(r.buffer) {
		r.grow()
	}
	r.buffer[(r.read+r.count)%len(r.buffer)] = e
	r.count++
}

// Pop removes the oldest event
func (r *eventRing) Pop() (Event, bool) {
	if r.count == 0 {
		return Event{}, false
	}
	e := r.buffer[r.read]
	r.buffer[r.read] = Event{}
	r.read = (r.read + 1) % len(r.buffer)
	r.count--
	return e, true
}

// Len returns the number of queued events
func (r *eventRing) Len() int {
	return r.count
}

// Cap returns the current capacity
func (r *eventRing) Cap() int {
	return len(r.buffer)
}

// Clear drops all queued events
func (r *eventRing) Clear() {
	for i := range r.buffer {
		r.buffer[i] = Event{}
	}
	r.read = 0
	r.count = 0
}

func (r *eventRing) grow() {
	grown := make([]Event, len(r.buffer)*2)
	for i := 0; i < r.count; i++ {
		grown[i] = r.buffer[(r.read+i)%len(r.buffer)]
	}
	r.buffer = grown
	r.read = 0
}
