package engine

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/model"
	"github.com/vearne/wndprobe/proto"
	"github.com/vearne/wndprobe/util"
)

// Session is the state of one connection cycle, fresh for every cycle.
type Session struct {
	ID    string
	Port  uint16
	Iface string

	// locked at SYN
	PeerIP   net.IP
	PeerPort uint16
	PeerMAC  net.HardwareAddr
	LocalIP  net.IP
	LocalMAC net.HardwareAddr
	locked   bool

	Ledger *Ledger
	Phase  string
	report *model.SessionReport
}

func newSession(iface string, port uint16, policy string) *Session {
	s := &Session{
		ID:    uuid.NewString(),
		Port:  port,
		Iface: iface,
		Phase: PhaseWaitSYN,
	}
	s.report = &model.SessionReport{
		ID:        s.ID,
		Policy:    policy,
		StartedAt: time.Now(),
		Phases:    []model.PhaseRecord{{Phase: PhaseWaitSYN, At: time.Now()}},
		LastPhase: PhaseWaitSYN,
	}
	return s
}

func (s *Session) DirectConn() model.DirectConn {
	var c model.DirectConn
	c.SrcAddr.IP = s.PeerIP.String()
	c.SrcAddr.Port = uint32(s.PeerPort)
	c.DstAddr.IP = s.LocalIP.String()
	c.DstAddr.Port = uint32(s.Port)
	return c
}

// enter moves the session to phase, rejecting transitions the table forbids.
func (s *Session) enter(phase string) error {
	if !CanTransit(s.Phase, phase) {
		return errors.Errorf("illegal transition %v -> %v", s.Phase, phase)
	}
	slog.Info("[ENGINE]change-state, session:%v, DirectConn:%v, fromState:[%v] -> toState:[%v]",
		s.ID, s.peer(), s.Phase, phase)
	s.Phase = phase
	s.report.Phases = append(s.report.Phases, model.PhaseRecord{Phase: phase, At: time.Now()})
	s.report.LastPhase = phase
	return nil
}

func (s *Session) peer() string {
	if !s.locked {
		return "-"
	}
	return s.DirectConn().String()
}

// lock binds the session to the sender of syn.
func (s *Session) lock(syn *model.Packet, isn uint32) error {
	if !util.IsIPv4(syn.SrcIP) {
		return &UnexpectedPeerBehavior{Phase: s.Phase, Reason: "only IPv4 peers are supported"}
	}
	s.PeerIP = syn.SrcIP
	s.PeerPort = syn.SrcPort
	s.PeerMAC = syn.SrcMAC
	s.LocalIP = syn.DstIP
	s.LocalMAC = syn.DstMAC
	s.locked = true

	s.Ledger = NewLedger(isn)
	s.Ledger.OnSYN(syn.Seq)

	s.report.Peer = s.DirectConn().String()
	s.report.LocalISN = isn
	s.report.PeerISN = syn.Seq
	return nil
}

// fromPeer reports whether p travels from the locked peer to us
func (s *Session) fromPeer(p *model.Packet) bool {
	return s.locked && p.SrcPort == s.PeerPort && p.DstPort == s.Port &&
		p.SrcIP.Equal(s.PeerIP)
}

func (s *Session) isSYN(p *model.Packet) bool {
	return p.DstPort == s.Port && p.Flags.Has(model.SYN) && !p.Flags.Has(model.ACK)
}

func (s *Session) isHandshakeAck(p *model.Packet) bool {
	return s.fromPeer(p) && p.Pure() && p.Ack == s.Ledger.HandshakeAck()
}

func (s *Session) isRequest(marker []byte) func(p *model.Packet) bool {
	return func(p *model.Packet) bool {
		if !s.fromPeer(p) || len(p.Payload) == 0 {
			return false
		}
		if marker == nil {
			return proto.HasRequestTitle(p.Payload)
		}
		return p.Contains(marker)
	}
}

func (s *Session) acks(expected uint32) func(p *model.Packet) bool {
	return func(p *model.Packet) bool {
		return s.fromPeer(p) && p.Flags.Has(model.ACK) && p.Ack == expected
	}
}

func (s *Session) isFIN(p *model.Packet) bool {
	return s.fromPeer(p) && p.Flags.Has(model.FIN)
}

func (s *Session) rejectRST(p *model.Packet) error {
	if s.fromPeer(p) && p.Flags.Has(model.RST) {
		return &UnexpectedPeerBehavior{Phase: s.Phase, Reason: "RST from peer, " + p.Summary()}
	}
	return nil
}

// rejectHandshake aborts on a pure ACK acknowledging anything but our SYN/ACK
func (s *Session) rejectHandshake(p *model.Packet) error {
	if err := s.rejectRST(p); err != nil {
		return err
	}
	if s.fromPeer(p) && p.Pure() && p.Ack != s.Ledger.HandshakeAck() {
		return &UnexpectedPeerBehavior{Phase: s.Phase,
			Reason: "handshake ack mismatch, " + p.Summary()}
	}
	return nil
}
