package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/vearne/wndprobe/model"
)

var ErrNotTCP = errors.New("no tcp layer")

// Decode turns one captured frame into a model.Packet.
// Ethernet, BSD loopback and raw IP link types are supported.
func Decode(data []byte, linkType layers.LinkType, ci gopacket.CaptureInfo) (*model.Packet, error) {
	pkt := gopacket.NewPacket(data, linkType, gopacket.Default)

	var p model.Packet
	p.Timestamp = ci.Timestamp

	if l := pkt.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		p.SrcMAC = eth.SrcMAC
		p.DstMAC = eth.DstMAC
	}

	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		p.SrcIP, p.DstIP = nl.SrcIP, nl.DstIP
	case *layers.IPv6:
		p.SrcIP, p.DstIP = nl.SrcIP, nl.DstIP
	default:
		return nil, ErrNotTCP
	}

	l := pkt.Layer(layers.LayerTypeTCP)
	if l == nil {
		if errLayer := pkt.ErrorLayer(); errLayer != nil {
			return nil, errLayer.Error()
		}
		return nil, ErrNotTCP
	}
	tcp := l.(*layers.TCP)

	p.SrcPort = uint16(tcp.SrcPort)
	p.DstPort = uint16(tcp.DstPort)
	p.Seq = tcp.Seq
	p.Ack = tcp.Ack
	p.Window = tcp.Window
	p.Flags = tcpFlags(tcp)
	if len(tcp.Payload) > 0 {
		p.Payload = tcp.Payload
	}
	return &p, nil
}

func tcpFlags(tcp *layers.TCP) model.Flags {
	var f model.Flags
	if tcp.FIN {
		f |= model.FIN
	}
	if tcp.SYN {
		f |= model.SYN
	}
	if tcp.RST {
		f |= model.RST
	}
	if tcp.PSH {
		f |= model.PSH
	}
	if tcp.ACK {
		f |= model.ACK
	}
	if tcp.URG {
		f |= model.URG
	}
	return f
}
