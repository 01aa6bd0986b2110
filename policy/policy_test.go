package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearne/wndprobe/config"
)

func contiguous(t *testing.T, plan Plan) {
	offset := 0
	for _, c := range plan.Chunks {
		assert.Equal(t, offset, c.Offset)
		assert.Greater(t, c.Length, 0)
		offset = c.End()
	}
	assert.Equal(t, plan.Total, offset)
}

func TestSingleShot(t *testing.T) {
	plan := SingleShot{}.Plan(1467)
	require.Len(t, plan.Chunks, 1)
	assert.Equal(t, 1467, plan.Chunks[0].Length)
	assert.False(t, plan.Chunks[0].WaitAck)
	assert.Zero(t, plan.Chunks[0].Delay)
	assert.Empty(t, SingleShot{}.Plan(0).Chunks)
}

func TestAckGated(t *testing.T) {
	p := &AckGated{Sizes: []int{500, 500}}
	plan := p.Plan(1467)
	contiguous(t, plan)
	assert.Equal(t, []int{500, 500, 467}, plan.Lengths())
	assert.True(t, plan.Chunks[0].WaitAck)
	assert.True(t, plan.Chunks[1].WaitAck)
	assert.False(t, plan.Chunks[2].WaitAck)

	p.GateFinal = true
	plan = p.Plan(1467)
	assert.True(t, plan.Chunks[2].WaitAck)
}

func TestAckGatedShortResponse(t *testing.T) {
	p := &AckGated{Sizes: []int{500, 500}}

	plan := p.Plan(700)
	contiguous(t, plan)
	assert.Equal(t, []int{500, 200}, plan.Lengths())
	assert.False(t, plan.Chunks[1].WaitAck)

	plan = p.Plan(1000)
	assert.Equal(t, []int{500, 500}, plan.Lengths())
}

func TestTimed(t *testing.T) {
	p := &Timed{Size: 500, Delay: 50 * time.Millisecond}
	plan := p.Plan(1467)
	contiguous(t, plan)
	assert.Equal(t, []int{500, 500, 467}, plan.Lengths())
	assert.Zero(t, plan.Chunks[0].Delay)
	for _, c := range plan.Chunks[1:] {
		assert.Equal(t, 50*time.Millisecond, c.Delay)
	}
	for _, c := range plan.Chunks {
		assert.False(t, c.WaitAck)
	}
}

func TestNew(t *testing.T) {
	settings := config.Default()
	assert.Equal(t, "single", New(&settings).Name())

	settings.Policy = config.PolicyChunked
	assert.Equal(t, "chunked", New(&settings).Name())
	assert.Equal(t, []int{500, 500, 100}, New(&settings).Plan(1100).Lengths())

	settings.Policy = config.PolicyFragmented
	settings.FragmentSize = 400
	p := New(&settings)
	assert.Equal(t, "fragmented", p.Name())
	assert.Equal(t, []int{400, 400, 300}, p.Plan(1100).Lengths())
}
