package capture

import (
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/metrics"
	"github.com/vearne/wndprobe/proto"
	"github.com/vearne/wndprobe/util"
)

// StartGrace is how long Start waits for the read loop to report it is reading
const StartGrace = 500 * time.Millisecond

// PcapOptions options that can be set on a pcap capture handle,
// these options take effect on inactive pcap handles
type PcapOptions struct {
	BufferTimeout time.Duration `json:"capture-buffer-timeout"`
	Promiscuous   bool          `json:"capture-promisc"`
	Snaplen       int           `json:"capture-snaplen"`
	// write every captured frame to this pcap file
	DumpFile string `json:"capture-dump"`
}

// Dispatcher reads frames from the interface in the background and appends
// every TCP segment of the test port to the CaptureLog.
type Dispatcher struct {
	iface  string
	port   uint16
	config PcapOptions
	log    *CaptureLog

	handler  gopacket.PacketDataSource
	linkType layers.LinkType

	dumpFile *os.File
	dumper   *pcapgo.Writer

	running atomic.Bool
	alive   atomic.Bool
	reading chan struct{} // closed when the loop has started reading packets
	done    chan struct{}
}

func NewDispatcher(iface string, port int, config PcapOptions, log *CaptureLog) *Dispatcher {
	if config.BufferTimeout == 0 {
		config.BufferTimeout = 100 * time.Millisecond
	}
	return &Dispatcher{
		iface:   iface,
		port:    uint16(port),
		config:  config,
		log:     log,
		reading: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Activate opens the pcap handle on the configured interface.
func (d *Dispatcher) Activate() error {
	handle, err := d.PcapHandle()
	if err != nil {
		return err
	}
	d.Use(handle, handle.LinkType())
	return nil
}

// Use installs an already opened packet source, e.g. a pcap file or a test double.
func (d *Dispatcher) Use(handler gopacket.PacketDataSource, linkType layers.LinkType) {
	d.handler = handler
	d.linkType = linkType
}

func (d *Dispatcher) LinkType() layers.LinkType {
	return d.linkType
}

func (d *Dispatcher) Log() *CaptureLog {
	return d.log
}

// Filter returns the BPF filter applied to the handle
func (d *Dispatcher) Filter() string {
	return portsFilter("tcp", []uint16{d.port})
}

// PcapHandle returns new pcap Handle from the interface on success.
func (d *Dispatcher) PcapHandle() (handle *pcap.Handle, err error) {
	var inactive *pcap.InactiveHandle
	inactive, err = pcap.NewInactiveHandle(d.iface)
	if err != nil {
		return nil, errors.Errorf("inactive handle error: %q, interface: %q", err, d.iface)
	}
	defer inactive.CleanUp()

	if d.config.Promiscuous {
		if err = inactive.SetPromisc(d.config.Promiscuous); err != nil {
			return nil, errors.Errorf("promiscuous mode error: %q, interface: %q", err, d.iface)
		}
	}

	snap := d.config.Snaplen
	if snap <= 0 {
		if mtu := util.InterfaceMTU(d.iface); mtu > 0 {
			snap = mtu + 200
		} else {
			snap = 64<<10 + 200
		}
	}
	d.config.Snaplen = snap

	if err = inactive.SetSnapLen(snap); err != nil {
		return nil, errors.Errorf("snapshot length error: %q, interface: %q", err, d.iface)
	}
	// the read timeout bounds how long Stop waits for the loop
	if err = inactive.SetTimeout(d.config.BufferTimeout); err != nil {
		return nil, errors.Errorf("handle buffer timeout error: %q, interface: %q", err, d.iface)
	}
	// deliver packets as soon as they arrive
	if err = inactive.SetImmediateMode(true); err != nil {
		slog.Warn("[CAPTURE]immediate mode unsupported, interface: %v, %v", d.iface, err)
	}
	handle, err = inactive.Activate()
	if err != nil {
		return nil, errors.Errorf("PCAP Activate device error: %q, interface: %q", err, d.iface)
	}

	bpfFilter := d.Filter()
	slog.Info("[CAPTURE]Interface: %v, BPF Filter: %v", d.iface, bpfFilter)
	if err = handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return nil, errors.Errorf("BPF filter error: %q%s, interface: %q", err, bpfFilter, d.iface)
	}
	return handle, nil
}

// Start spawns the read loop. It returns once the loop is reading,
// or after StartGrace.
func (d *Dispatcher) Start() error {
	if d.handler == nil {
		return errors.New("dispatcher is not activated")
	}
	if d.config.DumpFile != "" {
		if err := d.openDump(); err != nil {
			return err
		}
	}

	d.running.Store(true)
	d.alive.Store(true)
	go d.readHandle()

	select {
	case <-d.reading:
	case <-time.After(StartGrace):
	}
	return nil
}

// Stop clears the running flag and waits up to timeout for the loop to exit.
// It reports whether the loop was joined.
func (d *Dispatcher) Stop(timeout time.Duration) bool {
	d.running.Store(false)
	if !d.alive.Load() {
		return true
	}
	select {
	case <-d.done:
		return true
	case <-time.After(timeout):
		slog.Warn("[CAPTURE]read loop did not exit within %v", timeout)
		return false
	}
}

// Alive reports whether the read loop is still running
func (d *Dispatcher) Alive() bool {
	return d.alive.Load()
}

func (d *Dispatcher) readHandle() {
	runtime.LockOSThread()

	defer close(d.done)
	defer d.alive.Store(false)
	defer d.closeHandle()

	close(d.reading)
	for d.running.Load() {
		data, ci, err := d.handler.ReadPacketData()
		if err == nil {
			d.dispatch(data, ci)
			continue
		}
		if enext, ok := err.(pcap.NextError); ok && enext == pcap.NextErrorTimeoutExpired {
			continue
		}
		if eno, ok := err.(syscall.Errno); ok && eno.Temporary() {
			continue
		}
		if enet, ok := err.(*net.OpError); ok && (enet.Temporary() || enet.Timeout()) {
			continue
		}
		if err == io.EOF || err == io.ErrClosedPipe {
			slog.Warn("[CAPTURE]stopped reading from %s interface with error %s", d.iface, err)
			return
		}

		slog.Error("[CAPTURE]stopped reading from %s interface with error %s", d.iface, err)
		return
	}
}

func (d *Dispatcher) dispatch(data []byte, ci gopacket.CaptureInfo) {
	p, err := Decode(data, d.linkType, ci)
	if err != nil {
		metrics.DecodeFailures.Inc()
		slog.Debug("[CAPTURE]decode failed, len:%v, %v", len(data), err)
		return
	}
	if p.SrcPort != d.port && p.DstPort != d.port {
		return
	}

	d.log.Append(p)
	metrics.PacketsCaptured.Inc()
	if label := proto.Trace(p.Payload); label != "" {
		slog.Info("[CAPTURE] %v %v", p.Summary(), label)
	} else {
		slog.Info("[CAPTURE] %v", p.Summary())
	}

	if d.dumper != nil {
		if err = d.dumper.WritePacket(ci, data); err != nil {
			slog.Warn("[CAPTURE]write dump, %v", err)
		}
	}
}

func (d *Dispatcher) openDump() error {
	f, err := os.Create(d.config.DumpFile)
	if err != nil {
		return errors.Wrap(err, "create capture dump")
	}
	snap := d.config.Snaplen
	if snap <= 0 {
		snap = 64 << 10
	}
	w := pcapgo.NewWriter(f)
	if err = w.WriteFileHeader(uint32(snap), d.linkType); err != nil {
		f.Close()
		return errors.Wrap(err, "write capture dump header")
	}
	d.dumpFile = f
	d.dumper = w
	return nil
}

func (d *Dispatcher) closeHandle() {
	if c, ok := d.handler.(interface{ Close() }); ok {
		c.Close()
	} else if c, ok := d.handler.(io.Closer); ok {
		c.Close()
	}
	if d.dumpFile != nil {
		d.dumpFile.Close()
	}
}

func portsFilter(transport string, ports []uint16) string {
	if len(ports) == 0 || ports[0] == 0 {
		return fmt.Sprintf("%s portrange 0-%d", transport, 1<<16-1)
	}

	filter := ""
	for i, port := range ports {
		if i > 0 {
			filter += " or "
		}
		filter += fmt.Sprintf("%s port %d", transport, port)
	}
	return filter
}
