package model

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Flags is the TCP flag byte, same bit layout as the wire header
type Flags uint8

const (
	FIN Flags = 1 << iota
	SYN
	RST
	PSH
	ACK
	URG
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FIN, "FIN"}, {SYN, "SYN"}, {RST, "RST"}, {PSH, "PSH"}, {ACK, "ACK"}, {URG, "URG"},
}

// Has reports whether all bits of x are set
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

func (f Flags) String() string {
	tmpList := make([]string, 0)
	for _, item := range flagNames {
		if f&item.f > 0 {
			tmpList = append(tmpList, item.name)
		}
	}
	return strings.Join(tmpList, "|")
}

// DirectConn identifies one direction of a TCP connection
type DirectConn struct {
	SrcAddr psnet.Addr
	DstAddr psnet.Addr
}

func (d DirectConn) String() string {
	return fmt.Sprintf("%v:%v -> %v:%v", d.SrcAddr.IP,
		d.SrcAddr.Port, d.DstAddr.IP, d.DstAddr.Port)
}

// Reverse returns the opposite direction of the same connection
func (d DirectConn) Reverse() DirectConn {
	return DirectConn{SrcAddr: d.DstAddr, DstAddr: d.SrcAddr}
}

// Packet is one captured TCP segment. It is created by the capture
// dispatcher and must not be modified afterwards.
type Packet struct {
	// Order is assigned by the capture log, strictly increasing
	Order     uint64
	Timestamp time.Time

	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	SrcMAC, DstMAC   net.HardwareAddr

	Flags   Flags
	Seq     uint32
	Ack     uint32
	Window  uint16
	Payload []byte
}

func (p *Packet) DirectConn() DirectConn {
	var c DirectConn
	c.SrcAddr.IP = p.SrcIP.String()
	c.DstAddr.IP = p.DstIP.String()
	c.SrcAddr.Port = uint32(p.SrcPort)
	c.DstAddr.Port = uint32(p.DstPort)
	return c
}

// Pure reports an ACK-only segment without payload
func (p *Packet) Pure() bool {
	return p.Flags.Has(ACK) && p.Flags&(SYN|FIN|RST) == 0 && len(p.Payload) == 0
}

// Contains reports whether the payload carries marker
func (p *Packet) Contains(marker []byte) bool {
	return len(p.Payload) > 0 && bytes.Contains(p.Payload, marker)
}

// Summary is the one-line trace form of the packet
func (p *Packet) Summary() string {
	return fmt.Sprintf("%.6f %v [%v] seq=%v ack=%v win=%v len=%v",
		float64(p.Timestamp.UnixNano())/1e9, p.DirectConn().String(),
		p.Flags, p.Seq, p.Ack, p.Window, len(p.Payload))
}
