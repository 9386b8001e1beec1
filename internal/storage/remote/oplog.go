package remote

import (
	"sync"
	"time"
)

// Entry is one recorded storage call.
type Entry struct {
	Time  time.Time `json:"time"`
	Op    string    `json:"op"`
	Table string    `json:"table"`
	Site  string    `json:"site"`
}

// OpLog keeps a monotonically increasing call counter and a bounded
// ring of the most recent calls. Fixed capacity, drop-oldest; purely
// diagnostic.
type OpLog struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
	start   int
	count   int
	total   int64
}

func NewOpLog(capacity int) *OpLog {
	if capacity <= 0 {
		capacity = 200
	}
	return &OpLog{
		cap:     capacity,
		entries: make([]Entry, capacity),
	}
}

func (l *OpLog) Record(op, table, site string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	e := Entry{Time: time.Now(), Op: op, Table: table, Site: site}
	if l.count < l.cap {
		l.entries[(l.start+l.count)%l.cap] = e
		l.count++
		return
	}
	// full: overwrite the oldest slot
	l.entries[l.start] = e
	l.start = (l.start + 1) % l.cap
}

// Snapshot returns the retained entries oldest-first plus the total
// number of calls ever recorded.
func (l *OpLog) Snapshot() ([]Entry, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(l.start+i)%l.cap])
	}
	return out, l.total
}

// Reset clears the ring but keeps the counter monotonic.
func (l *OpLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start = 0
	l.count = 0
}
