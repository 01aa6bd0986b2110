package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearne/wndprobe/model"
)

func TestFilterChain(t *testing.T) {
	include, err := NewOutcomeMatchIncludeFilter("^(aborted|stopped)$")
	require.NoError(t, err)

	c := NewFilterChain()
	c.AddIncludeFilter(include)
	c.AddExcludeFilters(NewUnlockedExcludeFilter())

	r := &model.SessionReport{Outcome: model.OutcomeAborted, Peer: "192.168.4.2:50000"}
	got, ok := c.Filter(r)
	assert.True(t, ok)
	assert.Same(t, r, got)

	_, ok = c.Filter(&model.SessionReport{Outcome: model.OutcomeCompleted, Peer: "192.168.4.2:50000"})
	assert.False(t, ok)

	_, ok = c.Filter(&model.SessionReport{Outcome: model.OutcomeAborted})
	assert.False(t, ok)
}

func TestEmptyChainPassesAll(t *testing.T) {
	_, ok := NewFilterChain().Filter(&model.SessionReport{Outcome: model.OutcomeCompleted})
	assert.True(t, ok)
}

func TestBadExpr(t *testing.T) {
	_, err := NewOutcomeMatchIncludeFilter("(")
	assert.Error(t, err)
}
