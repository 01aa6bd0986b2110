package model

import "time"

const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeStopped   = "stopped"
)

// PhaseRecord marks the moment a session entered a phase
type PhaseRecord struct {
	Phase string    `json:"phase"`
	At    time.Time `json:"at"`
}

// ChunkRecord describes one response segment that was emitted
type ChunkRecord struct {
	Index  int    `json:"index"`
	Seq    uint32 `json:"seq"`
	Length int    `json:"length"`
	Gated  bool   `json:"gated"`
	Acked  bool   `json:"acked"`
}

// SessionReport summarizes one session cycle, handed to the report outputs
type SessionReport struct {
	ID         string        `json:"id"`
	Policy     string        `json:"policy"`
	Peer       string        `json:"peer"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Phases     []PhaseRecord `json:"phases"`
	LastPhase  string        `json:"lastPhase"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`

	LocalISN  uint32        `json:"localISN"`
	PeerISN   uint32        `json:"peerISN"`
	Request   string        `json:"request,omitempty"`
	BytesSent int           `json:"bytesSent"`
	Chunks    []ChunkRecord `json:"chunks,omitempty"`
}

func (r *SessionReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
