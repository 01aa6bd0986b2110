package engine

// Ledger keeps the sequence and acknowledgement numbers of one session.
// All arithmetic wraps at 2^32 like the wire fields.
type Ledger struct {
	ISN     uint32 // local initial sequence number
	PeerISN uint32
	// next local sequence number to send
	Local uint32
	// next peer sequence number expected, sent as our ack
	Ack uint32
}

func NewLedger(isn uint32) *Ledger {
	return &Ledger{ISN: isn, Local: isn}
}

// OnSYN records the peer's SYN at sequence seq.
func (l *Ledger) OnSYN(seq uint32) {
	l.PeerISN = seq
	l.Ack = seq + 1
}

// HandshakeAck is the ack number the peer must send for our SYN/ACK.
func (l *Ledger) HandshakeAck() uint32 {
	return l.Local + 1
}

// OnHandshakeComplete consumes the sequence number of our SYN.
func (l *Ledger) OnHandshakeComplete() {
	l.Local++
}

// OnRequest records a request payload of n bytes at sequence seq.
func (l *Ledger) OnRequest(seq uint32, n int) {
	l.Ack = seq + uint32(n)
}

// EndOf returns the sequence number following n bytes sent from Local.
func (l *Ledger) EndOf(n int) uint32 {
	return l.Local + uint32(n)
}

// OnSent advances Local by n bytes of payload.
func (l *Ledger) OnSent(n int) {
	l.Local += uint32(n)
}

// OnFIN records the peer's FIN at sequence seq carrying n bytes of payload.
func (l *Ledger) OnFIN(seq uint32, n int) {
	l.Ack = seq + uint32(n) + 1
}

// Delivered is the payload byte count sent since the handshake.
func (l *Ledger) Delivered() uint32 {
	// handshake not completed yet
	if l.Local == l.ISN {
		return 0
	}
	return l.Local - (l.ISN + 1)
}
