package service

import "sync"

// missTracker counts cache misses per key that are still waiting on upstream.
// More than one in flight for a key is a stampede.
type missTracker struct {
	mu       sync.Mutex
	inFlight map[string]int
}

func newMissTracker() *missTracker {
	return &missTracker{inFlight: make(map[string]int)}
}

// begin registers a miss for key and returns how many misses for key are now
// in flight, this one included. done must be called once the miss resolves;
// extra calls are no-ops.
func (mt *missTracker) begin(key string) (n int, done func()) {
	mt.mu.Lock()
	mt.inFlight[key]++
	n = mt.inFlight[key]
	mt.mu.Unlock()

	var once sync.Once
	return n, func() { once.Do(func() { mt.end(key) }) }
}

func (mt *missTracker) end(key string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.inFlight[key] <= 1 {
		delete(mt.inFlight, key)
		return
	}
	mt.inFlight[key]--
}
