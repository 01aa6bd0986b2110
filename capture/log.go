package capture

import (
	"sync"

	"github.com/vearne/wndprobe/metrics"
	"github.com/vearne/wndprobe/model"
)

// CaptureLog is the bounded, ordered record of captured segments shared by
// the dispatcher (writer) and the session engine (reader).
// The oldest packet is evicted once capacity is reached.
type CaptureLog struct {
	mu sync.Mutex

	buf   []*model.Packet
	head  int // index of the oldest packet
	count int
	order uint64 // order of the last appended packet
}

func NewCaptureLog(capacity int) *CaptureLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &CaptureLog{buf: make([]*model.Packet, capacity)}
}

// Append assigns the next capture order to p and stores it.
func (l *CaptureLog) Append(p *model.Packet) *model.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.order++
	p.Order = l.order

	tail := (l.head + l.count) % len(l.buf)
	if l.count == len(l.buf) {
		// overwrite the oldest
		l.head = (l.head + 1) % len(l.buf)
		metrics.LogEvictions.Inc()
	} else {
		l.count++
	}
	l.buf[tail] = p
	return p
}

// Mark returns the order of the newest packet. Packets appended afterwards
// have an order strictly greater than the mark.
func (l *CaptureLog) Mark() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order
}

// Latest scans most-recent-first and returns the first packet captured after
// since that satisfies match, nil if none.
func (l *CaptureLog) Latest(since uint64, match func(*model.Packet) bool) *model.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := l.count - 1; i >= 0; i-- {
		p := l.buf[(l.head+i)%len(l.buf)]
		if p.Order <= since {
			break
		}
		if match == nil || match(p) {
			return p
		}
	}
	return nil
}

func (l *CaptureLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *CaptureLog) Cap() int {
	return len(l.buf)
}

// Snapshot returns the stored packets, oldest first.
func (l *CaptureLog) Snapshot() []*model.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]*model.Packet, 0, l.count)
	for i := 0; i < l.count; i++ {
		result = append(result, l.buf[(l.head+i)%len(l.buf)])
	}
	return result
}
