// Package policy decides how a response is cut into segments: the sizes,
// which ones wait for the peer's ack and the pause before each.
package policy

import (
	"time"

	"github.com/vearne/wndprobe/config"
)

// Chunk is one response segment
type Chunk struct {
	Offset int
	Length int
	// wait for the ack of this chunk's end sequence before moving on
	WaitAck bool
	// pause before emitting this chunk
	Delay time.Duration
}

func (c Chunk) End() int {
	return c.Offset + c.Length
}

// Plan is immutable once built. Chunks are contiguous and cover Total bytes.
type Plan struct {
	Total  int
	Chunks []Chunk
}

func (p Plan) Lengths() []int {
	result := make([]int, 0, len(p.Chunks))
	for _, c := range p.Chunks {
		result = append(result, c.Length)
	}
	return result
}

type Policy interface {
	Name() string
	Plan(total int) Plan
}

// New picks the policy configured in settings
func New(settings *config.AppSettings) Policy {
	switch settings.Policy {
	case config.PolicyChunked:
		return &AckGated{Sizes: settings.Chunks(), GateFinal: settings.AckFinalChunk}
	case config.PolicyFragmented:
		return &Timed{Size: int(settings.FragmentSize), Delay: settings.FragmentDelay}
	default:
		return SingleShot{}
	}
}

// SingleShot sends everything in one segment, the window overrun trigger
type SingleShot struct{}

func (SingleShot) Name() string {
	return "single"
}

func (SingleShot) Plan(total int) Plan {
	plan := Plan{Total: total}
	if total > 0 {
		plan.Chunks = []Chunk{{Offset: 0, Length: total}}
	}
	return plan
}

// AckGated sends the configured sizes followed by the remainder, waiting for
// the ack of every chunk except the final one unless GateFinal is set.
type AckGated struct {
	Sizes     []int
	GateFinal bool
}

func (a *AckGated) Name() string {
	return "chunked"
}

func (a *AckGated) Plan(total int) Plan {
	plan := Plan{Total: total}
	offset := 0
	for _, size := range a.Sizes {
		if offset >= total {
			break
		}
		if size <= 0 {
			continue
		}
		if offset+size > total {
			size = total - offset
		}
		plan.Chunks = append(plan.Chunks, Chunk{Offset: offset, Length: size})
		offset += size
	}
	if offset < total {
		plan.Chunks = append(plan.Chunks, Chunk{Offset: offset, Length: total - offset})
	}

	for i := range plan.Chunks {
		plan.Chunks[i].WaitAck = i < len(plan.Chunks)-1 || a.GateFinal
	}
	return plan
}

// Timed sends fixed-size chunks with a fixed pause between them, never
// waiting for acks.
type Timed struct {
	Size  int
	Delay time.Duration
}

func (t *Timed) Name() string {
	return "fragmented"
}

func (t *Timed) Plan(total int) Plan {
	plan := Plan{Total: total}
	size := t.Size
	if size <= 0 {
		size = total
	}
	for offset := 0; offset < total; offset += size {
		c := Chunk{Offset: offset, Length: size}
		if c.End() > total {
			c.Length = total - offset
		}
		if offset > 0 {
			c.Delay = t.Delay
		}
		plan.Chunks = append(plan.Chunks, c)
	}
	return plan
}
