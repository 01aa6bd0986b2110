package engine

import (
	"context"

	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/metrics"
	"github.com/vearne/wndprobe/model"
)

// deliver executes the response plan. The plan decides sizes, gating and
// pauses; sequence bookkeeping is the same for every policy.
func (e *Engine) deliver(ctx context.Context, s *Session) error {
	total := len(e.plan.Chunks)
	slog.Info("[ENGINE]sending response, session:%v, %v bytes in %v segment(s), policy:%v",
		s.ID, e.plan.Total, total, e.policy.Name())

	for i, c := range e.plan.Chunks {
		if err := e.pause(ctx, c.Delay); err != nil {
			return err
		}

		rec := model.ChunkRecord{Index: i, Seq: s.Ledger.Local, Length: c.Length, Gated: c.WaitAck}
		end := s.Ledger.EndOf(c.Length)
		mark := e.capture.Mark()

		slog.Info("[ENGINE]segment %v/%v, %v bytes, SEQ=%v, next SEQ=%v", i+1, total, c.Length, rec.Seq, end)
		if err := e.send(s, model.PSH|model.ACK, e.response[c.Offset:c.End()]); err != nil {
			return err
		}
		s.Ledger.OnSent(c.Length)

		if c.WaitAck {
			_, err := e.await(ctx, s, wait{
				since:   mark,
				timeout: e.settings.Timeouts.DataACK,
				match:   s.acks(end),
				reject:  s.rejectRST,
			})
			switch {
			case err == nil:
				rec.Acked = true
			case IsPhaseTimeout(err):
				metrics.UnackedChunks.Inc()
				slog.Warn("[ENGINE]no ACK=%v for segment %v/%v, continuing anyway", end, i+1, total)
			default:
				return err
			}
		}
		s.report.Chunks = append(s.report.Chunks, rec)
	}

	slog.Info("[ENGINE]response sent, session:%v, final SEQ=%v", s.ID, s.Ledger.Local)
	return nil
}
