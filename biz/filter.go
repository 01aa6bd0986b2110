package biz

import (
	"github.com/vearne/wndprobe/config"
	"github.com/vearne/wndprobe/filter"
)

func NewFilterChain(settings *config.AppSettings) (filter.Filter, error) {
	c := filter.NewFilterChain()
	c.AddExcludeFilters(filter.NewUnlockedExcludeFilter())

	if len(settings.IncludeFilterOutcomeMatch) > 0 {
		f, err := filter.NewOutcomeMatchIncludeFilter(settings.IncludeFilterOutcomeMatch)
		if err != nil {
			return nil, err
		}
		c.AddIncludeFilter(f)
	}
	return c, nil
}
