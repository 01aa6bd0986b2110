package biz

import "github.com/vearne/wndprobe/model"

// PluginWriter is an interface for output plugins
type PluginWriter interface {
	PluginWrite(r *model.SessionReport) (n int, err error)
}

// Limiter caps how many reports reach the outputs
type Limiter interface {
	Allow() bool
}
