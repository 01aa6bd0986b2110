package sender

import (
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// FrameWriter writes one link-layer frame, *pcap.Handle is one
type FrameWriter interface {
	WritePacketData(data []byte) error
}

// PcapSender writes whole frames through a pcap handle
type PcapSender struct {
	sync.Mutex
	handle   FrameWriter
	linkType layers.LinkType
	closer   func()
}

// NewPcapSender opens a dedicated pcap handle on iface for writing.
func NewPcapSender(iface string) (*PcapSender, error) {
	handle, err := pcap.OpenLive(iface, 1600, false, time.Second)
	if err != nil {
		return nil, errors.Errorf("open send handle error: %q, interface: %q", err, iface)
	}
	s := NewFrameSender(handle, handle.LinkType())
	s.closer = handle.Close
	return s, nil
}

func NewFrameSender(w FrameWriter, linkType layers.LinkType) *PcapSender {
	return &PcapSender{handle: w, linkType: linkType}
}

func (s *PcapSender) Send(seg *Segment) (err error) {
	defer func() { trace(seg, err) }()

	if err = check(seg); err != nil {
		return err
	}
	data, err := Serialize(seg, s.linkType)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	return s.handle.WritePacketData(data)
}

func (s *PcapSender) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
