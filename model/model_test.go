package model

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "SYN|ACK", (SYN | ACK).String())
	assert.Equal(t, "FIN|PSH|ACK", (FIN | PSH | ACK).String())
	assert.Equal(t, "", Flags(0).String())
	assert.Equal(t, Flags(0x12), SYN|ACK)
	assert.Equal(t, Flags(0x08), PSH)
}

func TestPacketPure(t *testing.T) {
	p := &Packet{Flags: ACK}
	assert.True(t, p.Pure())

	p = &Packet{Flags: ACK, Payload: []byte("GET")}
	assert.False(t, p.Pure())

	p = &Packet{Flags: ACK | FIN}
	assert.False(t, p.Pure())
}

func TestDirectConn(t *testing.T) {
	p := &Packet{
		SrcIP:   net.ParseIP("192.168.4.2"),
		DstIP:   net.ParseIP("192.168.4.1"),
		SrcPort: 50000,
		DstPort: 3333,
	}
	dc := p.DirectConn()
	assert.Equal(t, "192.168.4.2:50000 -> 192.168.4.1:3333", dc.String())
	assert.Equal(t, "192.168.4.1:3333 -> 192.168.4.2:50000", dc.Reverse().String())
}
