/*
Package capture sniffs the test port with libpcap and keeps what it sees in a
bounded CaptureLog. The session engine never reads the wire directly: it
polls the log, most recent packet first, for the segment it is waiting for.

example:

	log := capture.NewCaptureLog(100)
	d := capture.NewDispatcher("lo", 3333, capture.PcapOptions{}, log)
	if err := d.Activate(); err != nil {
		// handle it
	}
	d.Start()
	defer d.Stop(time.Second)

	mark := log.Mark()
	// ... emit a segment ...
	p := log.Latest(mark, func(p *model.Packet) bool { return p.Flags.Has(model.ACK) })
*/
package capture
