package capture

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearne/wndprobe/model"
)

var (
	peerMAC  = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
	localMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
)

func ethernetFrame(t *testing.T, srcPort, dstPort uint16, seq uint32, syn, ack bool, payload []byte) []byte {
	eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: localMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(192, 168, 4, 2), DstIP: net.IPv4(192, 168, 4, 1),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort),
		Seq: seq, SYN: syn, ACK: ack, PSH: len(payload) > 0, Window: 5840}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

type fakeSource struct {
	sync.Mutex
	frames [][]byte
	eof    bool
	closed bool
}

func (f *fakeSource) push(frame []byte) {
	f.Lock()
	defer f.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	f.Lock()
	if len(f.frames) == 0 {
		eof := f.eof
		f.Unlock()
		if eof {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		time.Sleep(5 * time.Millisecond)
		return nil, gopacket.CaptureInfo{}, pcap.NextErrorTimeoutExpired
	}
	data := f.frames[0]
	f.frames = f.frames[1:]
	f.Unlock()

	return data, gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(data), Length: len(data)}, nil
}

func (f *fakeSource) Close() {
	f.Lock()
	defer f.Unlock()
	f.closed = true
}

func TestCaptureLogOrder(t *testing.T) {
	log := NewCaptureLog(3)
	mark := log.Mark()
	assert.Equal(t, uint64(0), mark)

	for i := 0; i < 5; i++ {
		log.Append(&model.Packet{Seq: uint32(i)})
	}
	assert.Equal(t, 3, log.Len())
	assert.Equal(t, uint64(5), log.Mark())

	snapshot := log.Snapshot()
	require.Len(t, snapshot, 3)
	// the two oldest were evicted
	assert.Equal(t, uint32(2), snapshot[0].Seq)
	assert.Equal(t, uint32(4), snapshot[2].Seq)
	assert.Equal(t, uint64(3), snapshot[0].Order)
}

func TestCaptureLogLatest(t *testing.T) {
	log := NewCaptureLog(10)
	log.Append(&model.Packet{Flags: model.SYN, Seq: 1})
	mark := log.Mark()
	log.Append(&model.Packet{Flags: model.ACK, Seq: 2})
	log.Append(&model.Packet{Flags: model.ACK, Seq: 3})

	isSYN := func(p *model.Packet) bool { return p.Flags.Has(model.SYN) }
	isACK := func(p *model.Packet) bool { return p.Flags.Has(model.ACK) }

	// packets before the mark are invisible
	assert.Nil(t, log.Latest(mark, isSYN))
	assert.NotNil(t, log.Latest(0, isSYN))

	// most recent first
	p := log.Latest(mark, isACK)
	require.NotNil(t, p)
	assert.Equal(t, uint32(3), p.Seq)

	assert.Nil(t, log.Latest(log.Mark(), nil))
}

func TestCaptureLogConcurrent(t *testing.T) {
	log := NewCaptureLog(100)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				log.Append(&model.Packet{})
				log.Latest(0, nil)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, log.Len())
	assert.Equal(t, uint64(1000), log.Mark())
}

func TestDecodeEthernet(t *testing.T) {
	frame := ethernetFrame(t, 50000, 3333, 1000, false, true, []byte("GET / HTTP/1.1\r\n\r\n"))
	p, err := Decode(frame, layers.LinkTypeEthernet, gopacket.CaptureInfo{})
	require.NoError(t, err)

	assert.Equal(t, "192.168.4.2", p.SrcIP.String())
	assert.Equal(t, uint16(50000), p.SrcPort)
	assert.Equal(t, uint16(3333), p.DstPort)
	assert.Equal(t, uint32(1000), p.Seq)
	assert.Equal(t, model.PSH|model.ACK, p.Flags)
	assert.Equal(t, uint16(5840), p.Window)
	assert.Equal(t, peerMAC, p.SrcMAC)
	assert.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(p.Payload))
}

func TestDecodeLoopback(t *testing.T) {
	lo := &layers.Loopback{Family: layers.ProtocolFamilyIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(127, 0, 0, 1), DstIP: net.IPv4(127, 0, 0, 1)}
	tcp := &layers.TCP{SrcPort: 50000, DstPort: 3333, Seq: 7, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, lo, ip, tcp))

	p, err := Decode(buf.Bytes(), layers.LinkTypeNull, gopacket.CaptureInfo{})
	require.NoError(t, err)
	assert.Equal(t, model.SYN, p.Flags)
	assert.Nil(t, p.SrcMAC)
	assert.Nil(t, p.Payload)
}

func TestDecodeNotTCP(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: peerMAC, DstMAC: localMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	udp := &layers.UDP{SrcPort: 53, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, eth, ip, udp))

	_, err := Decode(buf.Bytes(), layers.LinkTypeEthernet, gopacket.CaptureInfo{})
	assert.Error(t, err)
}

func TestPortsFilter(t *testing.T) {
	assert.Equal(t, "tcp port 3333", portsFilter("tcp", []uint16{3333}))
	assert.Equal(t, "tcp port 80 or tcp port 8080", portsFilter("tcp", []uint16{80, 8080}))
	assert.Equal(t, "tcp portrange 0-65535", portsFilter("tcp", nil))
}

func TestDispatcher(t *testing.T) {
	log := NewCaptureLog(10)
	dump := filepath.Join(t.TempDir(), "session.pcap")
	d := NewDispatcher("test0", 3333, PcapOptions{DumpFile: dump}, log)

	src := &fakeSource{}
	d.Use(src, layers.LinkTypeEthernet)
	require.NoError(t, d.Start())
	assert.True(t, d.Alive())

	src.push(ethernetFrame(t, 50000, 3333, 1000, true, false, nil))
	// another port, dropped
	src.push(ethernetFrame(t, 50000, 8080, 5, true, false, nil))
	src.push(ethernetFrame(t, 50000, 3333, 1001, false, true, nil))

	assert.Eventually(t, func() bool { return log.Len() == 2 }, time.Second, 10*time.Millisecond)

	syn := log.Latest(0, func(p *model.Packet) bool { return p.Flags.Has(model.SYN) })
	require.NotNil(t, syn)
	assert.Equal(t, uint32(1000), syn.Seq)

	assert.True(t, d.Stop(time.Second))
	assert.False(t, d.Alive())
	src.Lock()
	assert.True(t, src.closed)
	src.Unlock()

	f, err := os.Open(dump)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())
	count := 0
	for {
		_, _, err = r.ReadPacketData()
		if err != nil {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}

func TestDispatcherHTTPPayload(t *testing.T) {
	log := NewCaptureLog(10)
	d := NewDispatcher("test0", 3333, PcapOptions{}, log)
	src := &fakeSource{}
	d.Use(src, layers.LinkTypeEthernet)
	require.NoError(t, d.Start())

	request := []byte("GET /test HTTP/1.1\r\nHost: test\r\n\r\n")
	src.push(ethernetFrame(t, 50000, 3333, 1001, false, true, request))
	src.push(ethernetFrame(t, 3333, 50000, 4001, false, true,
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nRAW_")))

	assert.Eventually(t, func() bool { return log.Len() == 2 }, time.Second, 10*time.Millisecond)
	assert.True(t, d.Stop(time.Second))

	got := log.Latest(0, func(p *model.Packet) bool { return p.DstPort == 3333 })
	require.NotNil(t, got)
	assert.Equal(t, request, got.Payload)
}

func TestDispatcherEOF(t *testing.T) {
	d := NewDispatcher("test0", 3333, PcapOptions{}, NewCaptureLog(10))
	src := &fakeSource{eof: true}
	d.Use(src, layers.LinkTypeEthernet)
	require.NoError(t, d.Start())

	// the loop ends on its own, the dispatcher reports it
	assert.Eventually(t, func() bool { return !d.Alive() }, time.Second, 10*time.Millisecond)
	assert.True(t, d.Stop(time.Second))
}

func TestDispatcherNotActivated(t *testing.T) {
	d := NewDispatcher("test0", 3333, PcapOptions{}, NewCaptureLog(10))
	assert.Error(t, d.Start())
	assert.True(t, d.Stop(10*time.Millisecond))
}
