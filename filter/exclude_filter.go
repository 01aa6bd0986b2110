package filter

import (
	"github.com/vearne/wndprobe/model"
)

// UnlockedExcludeFilter drops reports of cycles that never locked a peer
type UnlockedExcludeFilter struct{}

func NewUnlockedExcludeFilter() *UnlockedExcludeFilter {
	return &UnlockedExcludeFilter{}
}

// Filter :If ok is true, it means that the report can pass
func (f *UnlockedExcludeFilter) Filter(r *model.SessionReport) (*model.SessionReport, bool) {
	if r.Peer == "" {
		return nil, false
	}
	return r, true
}
