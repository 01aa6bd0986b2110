package filter

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/vearne/wndprobe/model"
)

type OutcomeMatchIncludeFilter struct {
	r *regexp.Regexp
}

func NewOutcomeMatchIncludeFilter(expr string) (*OutcomeMatchIncludeFilter, error) {
	var f OutcomeMatchIncludeFilter
	var err error
	f.r, err = regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "outcome expr %q", expr)
	}
	return &f, nil
}

// Filter :If ok is true, it means that the report can pass
func (f *OutcomeMatchIncludeFilter) Filter(r *model.SessionReport) (*model.SessionReport, bool) {
	if f.r.MatchString(r.Outcome) {
		return r, true
	}
	return nil, false
}
