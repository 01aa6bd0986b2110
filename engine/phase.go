package engine

const (
	//#################### Establish Connection #################
	PhaseWaitSYN = "WAIT_SYN"
	// send SYN+ACK
	PhaseSynAckSent       = "SYNACK_SENT"
	PhaseWaitHandshakeACK = "WAIT_HANDSHAKE_ACK"
	PhaseEstablished      = "ESTABLISHED"

	//#################### Request / Response ##################
	PhaseWaitRequest     = "WAIT_REQUEST"
	PhaseRequestAcked    = "REQUEST_ACKED"
	PhaseSendingResponse = "SENDING_RESPONSE"

	//#################### Close Connection ####################
	PhaseWaitClose = "WAIT_CLOSE"
	PhaseClosed    = "CLOSED"
)

// from the server's perspective, any phase may also abort to CLOSED
var transitions = map[string][]string{
	PhaseWaitSYN:          {PhaseSynAckSent},
	PhaseSynAckSent:       {PhaseWaitHandshakeACK},
	PhaseWaitHandshakeACK: {PhaseEstablished},
	PhaseEstablished:      {PhaseWaitRequest},
	PhaseWaitRequest:      {PhaseRequestAcked},
	PhaseRequestAcked:     {PhaseSendingResponse},
	PhaseSendingResponse:  {PhaseWaitClose},
	PhaseWaitClose:        {PhaseClosed},
	// persistent listener
	PhaseClosed: {PhaseWaitSYN},
}

// CanTransit reports whether from -> to is allowed
func CanTransit(from, to string) bool {
	if to == PhaseClosed && from != PhaseClosed {
		return true
	}
	for _, item := range transitions[from] {
		if item == to {
			return true
		}
	}
	return false
}
