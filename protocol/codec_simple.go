package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/vearne/wndprobe/model"
)

const CodecSimpleName = "simple"

func init() {
	RegisterCodec(CodecSimple{})
}

// CodecSimple writes one line per session
// {finished-at} {id} {outcome} {policy} {peer} {last-phase} {bytes-sent} {cost} [{chunks}] {error}
type CodecSimple struct{}

func (c CodecSimple) Marshal(r *model.SessionReport) ([]byte, error) {
	buff := bytes.NewBuffer(make([]byte, 0))
	buff.WriteString(fmt.Sprintf("%s %s %s %s %s %s %d %v",
		r.FinishedAt.Format(time.RFC3339Nano), r.ID, r.Outcome, r.Policy, orDash(r.Peer),
		r.LastPhase, r.BytesSent, r.Duration()))

	// chunks, "*" marks an acked gated chunk, "!" one whose ack never came
	buff.WriteString(" [")
	for i, item := range r.Chunks {
		if i > 0 {
			buff.WriteByte(' ')
		}
		buff.WriteString(strconv.Itoa(item.Length))
		if item.Gated {
			if item.Acked {
				buff.WriteByte('*')
			} else {
				buff.WriteByte('!')
			}
		}
	}
	buff.WriteString("]")

	if r.Error != "" {
		buff.WriteString(" ")
		buff.WriteString(strconv.Quote(r.Error))
	}
	buff.Write([]byte{'\n'})
	return buff.Bytes(), nil
}

func (c CodecSimple) Name() string {
	return CodecSimpleName
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
