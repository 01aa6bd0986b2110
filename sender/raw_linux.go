//go:build linux

package sender

import (
	"context"
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/net/bpf"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// RawSender writes IPv4 datagrams with a hand-built header (IP_HDRINCL)
// through a raw socket bound to one interface.
type RawSender struct {
	pc   net.PacketConn
	conn *ipv4.RawConn
}

func NewRawSender(iface string) (*RawSender, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, iface)
				if serr == nil {
					// the kernel rounds it up to its minimum
					serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, 0)
				}
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "ip4:tcp", "0.0.0.0")
	if err != nil {
		return nil, errors.Wrapf(err, "open raw socket, interface:%v", iface)
	}
	conn, err := ipv4.NewRawConn(pc)
	if err != nil {
		pc.Close()
		return nil, errors.Wrap(err, "enable IP_HDRINCL")
	}
	// every inbound TCP packet would otherwise queue up here unread
	prog, err := bpf.Assemble(dropAll)
	if err == nil {
		err = conn.SetBPF(prog)
	}
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "attach drop filter")
	}
	return &RawSender{pc: pc, conn: conn}, nil
}

func (s *RawSender) Send(seg *Segment) (err error) {
	defer func() { trace(seg, err) }()

	if err = check(seg); err != nil {
		return err
	}
	body, err := SerializeTCP(seg)
	if err != nil {
		return err
	}
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(body),
		TTL:      64,
		Flags:    ipv4.DontFragment,
		Protocol: int(unix.IPPROTO_TCP),
		Src:      seg.SrcIP.To4(),
		Dst:      seg.DstIP.To4(),
	}
	return s.conn.WriteTo(h, body, nil)
}

func (s *RawSender) Close() error {
	return s.conn.Close()
}
