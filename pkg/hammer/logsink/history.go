package logsink

import (
	"sync"

	"github.com/rotisserie/eris"
)

// History keeps the most recent records in a bounded ring buffer holding exactly capacity
// records. Safe for concurrent writers and readers.
type History struct {
	mu   sync.RWMutex
	buf  []Record
	head uint64 // Total records written
}

var _ Sink = (*History)(nil)

func NewHistory(capacity int) (*History, error) {
	if capacity <= 0 {
		return nil, eris.Errorf("history capacity must be > 0, got %d", capacity)
	}
	return &History{buf: make([]Record, capacity)}, nil
}

func (h *History) OnLogEntry(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.slot(h.head)] = rec
	h.head++
}

// Cap returns the buffer capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Last returns up to n of the newest records, oldest first.
func (h *History) Last(n int) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := min(h.head, uint64(len(h.buf)))
	if n >= 0 && uint64(n) < size {
		size = uint64(n)
	}
	out := make([]Record, 0, size)
	for t := h.head - size; t < h.head; t++ {
		out = append(out, h.buf[h.slot(t)])
	}
	return out
}

// Filter returns the buffered records matching keep, oldest first.
func (h *History) Filter(keep func(Record) bool) []Record {
	var out []Record
	for _, rec := range h.Last(-1) {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (h *History) slot(seq uint64) uint64 {
	return seq % uint64(len(h.buf))
}
