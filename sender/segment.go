// Package sender builds TCP segments by hand and puts them on the wire,
// bypassing the host TCP stack.
package sender

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/consts"
	"github.com/vearne/wndprobe/metrics"
	"github.com/vearne/wndprobe/model"
	"golang.org/x/net/bpf"
)

// ErrRSTForbidden is returned for any segment carrying RST
var ErrRSTForbidden = errors.New("sending RST is not allowed")

var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

// Segment is one outgoing TCP segment with its addressing
type Segment struct {
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	SrcMAC, DstMAC   net.HardwareAddr

	Flags   model.Flags
	Seq     uint32
	Ack     uint32
	Window  uint16
	Payload []byte
}

func (s *Segment) Summary() string {
	return fmt.Sprintf("%v:%v -> %v:%v [%v] seq=%v ack=%v win=%v len=%v",
		s.SrcIP, s.SrcPort, s.DstIP, s.DstPort, s.Flags, s.Seq, s.Ack, s.Window, len(s.Payload))
}

// Sender emits segments. Implementations reject RST.
type Sender interface {
	Send(seg *Segment) error
	Close() error
}

func (s *Segment) layers() (*layers.IPv4, *layers.TCP, error) {
	src, dst := s.SrcIP.To4(), s.DstIP.To4()
	if src == nil || dst == nil {
		return nil, nil, errors.Errorf("only IPv4 is supported, %v -> %v", s.SrcIP, s.DstIP)
	}
	if len(s.Payload) > consts.MaxSegmentPayload {
		return nil, nil, errors.Errorf("payload of %d bytes exceeds %d", len(s.Payload), consts.MaxSegmentPayload)
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src,
		DstIP:    dst,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     s.Seq,
		Ack:     s.Ack,
		Window:  s.Window,
		FIN:     s.Flags.Has(model.FIN),
		SYN:     s.Flags.Has(model.SYN),
		RST:     s.Flags.Has(model.RST),
		PSH:     s.Flags.Has(model.PSH),
		ACK:     s.Flags.Has(model.ACK),
		URG:     s.Flags.Has(model.URG),
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, nil, err
	}
	return ip, tcp, nil
}

// Serialize builds the whole frame for the given link type.
func Serialize(seg *Segment, linkType layers.LinkType) ([]byte, error) {
	ip, tcp, err := seg.layers()
	if err != nil {
		return nil, err
	}

	var stack []gopacket.SerializableLayer
	switch linkType {
	case layers.LinkTypeEthernet:
		eth := &layers.Ethernet{
			SrcMAC:       seg.SrcMAC,
			DstMAC:       seg.DstMAC,
			EthernetType: layers.EthernetTypeIPv4,
		}
		if len(eth.SrcMAC) == 0 {
			eth.SrcMAC = zeroMAC
		}
		if len(eth.DstMAC) == 0 {
			eth.DstMAC = zeroMAC
		}
		stack = append(stack, eth)
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		stack = append(stack, &layers.Loopback{Family: layers.ProtocolFamilyIPv4})
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
	default:
		return nil, errors.Errorf("unsupported link type %v", linkType)
	}
	stack = append(stack, ip, tcp, gopacket.Payload(seg.Payload))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err = gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, errors.Wrap(err, "serialize segment")
	}
	return buf.Bytes(), nil
}

// SerializeTCP builds the TCP header plus payload, checksummed against the
// IPv4 pseudo header, for senders that supply the IP header themselves.
func SerializeTCP(seg *Segment) ([]byte, error) {
	_, tcp, err := seg.layers()
	if err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err = gopacket.SerializeLayers(buf, opts, tcp, gopacket.Payload(seg.Payload)); err != nil {
		return nil, errors.Wrap(err, "serialize segment")
	}
	return buf.Bytes(), nil
}

// dropAll keeps nothing, the raw socket is write only
var dropAll = []bpf.Instruction{
	bpf.RetConstant{Val: 0},
}

func check(seg *Segment) error {
	if seg.Flags.Has(model.RST) {
		return ErrRSTForbidden
	}
	return nil
}

func trace(seg *Segment, err error) {
	if err != nil {
		metrics.SendErrors.Inc()
		slog.Error("[SEND] %v, error:%v", seg.Summary(), err)
		return
	}
	metrics.SegmentsSent.WithLabelValues(seg.Flags.String()).Inc()
	slog.Info("[SEND] %v", seg.Summary())
}
