package util

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// RunFlag is the process-wide "keep running" switch shared by the
// dispatcher and the session engine.
type RunFlag struct {
	running atomic.Bool
}

func NewRunFlag() *RunFlag {
	var f RunFlag
	f.running.Store(true)
	return &f
}

func (f *RunFlag) Running() bool {
	return f.running.Load()
}

func (f *RunFlag) Stop() {
	f.running.Store(false)
}

// PortListeners returns the kernel sockets listening on the TCP port.
// A kernel listener answers the handshake itself, so the harness needs none.
func PortListeners(ctx context.Context, port int) ([]psnet.ConnectionStat, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, errors.Wrap(err, "list tcp connections")
	}
	return Listeners(conns, port), nil
}

func Listeners(conns []psnet.ConnectionStat, port int) []psnet.ConnectionStat {
	result := make([]psnet.ConnectionStat, 0)
	for _, c := range conns {
		if c.Status == "LISTEN" && c.Laddr.Port == uint32(port) {
			result = append(result, c)
		}
	}
	return result
}
