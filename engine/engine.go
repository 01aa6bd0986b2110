// Package engine conducts one TCP dialogue at a time by hand: it watches the
// capture log for the peer's segments and answers with forged ones, never
// involving the host TCP stack.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"
	slog "github.com/vearne/simplelog"
	"github.com/vearne/wndprobe/config"
	"github.com/vearne/wndprobe/metrics"
	"github.com/vearne/wndprobe/model"
	"github.com/vearne/wndprobe/policy"
	"github.com/vearne/wndprobe/proto"
	"github.com/vearne/wndprobe/response"
	"github.com/vearne/wndprobe/sender"
	"github.com/vearne/wndprobe/util"
)

// Capture is the read side of the capture log
type Capture interface {
	Mark() uint64
	Latest(since uint64, match func(*model.Packet) bool) *model.Packet
}

// Publisher receives the report of every session that reached a peer
type Publisher interface {
	Publish(r *model.SessionReport)
}

type Options struct {
	// defaults to RandomISN
	ISN       func() uint32
	Publisher Publisher
	Running   *util.RunFlag
}

type Engine struct {
	settings *config.AppSettings
	capture  Capture
	sender   sender.Sender
	policy   policy.Policy
	marker   []byte

	// built once per run
	response []byte
	plan     policy.Plan

	isn       func() uint32
	publisher Publisher
	running   *util.RunFlag

	// session cycles started so far
	cycles int
}

func New(settings *config.AppSettings, capture Capture, s sender.Sender, p policy.Policy, opts Options) *Engine {
	e := &Engine{
		settings:  settings,
		capture:   capture,
		sender:    s,
		policy:    p,
		marker:    settings.Marker(),
		isn:       opts.ISN,
		publisher: opts.Publisher,
		running:   opts.Running,
	}
	if e.isn == nil {
		e.isn = RandomISN
	}
	if e.running == nil {
		e.running = util.NewRunFlag()
	}

	body := response.NewGenerator().Generate(int(settings.BodyLength))
	e.response = response.Build(body)
	e.plan = p.Plan(len(e.response))
	return e
}

// RandomISN 生成初始序列号
func RandomISN() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(buf[:])
}

func (e *Engine) Response() []byte {
	return e.response
}

func (e *Engine) Plan() policy.Plan {
	return e.plan
}

// Run serves sessions one after another until the run flag is cleared or
// ctx is done. Session failures never end the loop.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("[ENGINE]listening on %v:%v, policy:%v, response:%v bytes, chunks:%v",
		e.settings.Interface, e.settings.Port, e.policy.Name(), len(e.response), e.plan.Lengths())

	for e.running.Running() && ctx.Err() == nil {
		_, err := e.RunSession(ctx)
		if errors.Is(err, ErrStopped) {
			break
		}
	}
	slog.Info("[ENGINE]stopped")
	return nil
}

func (e *Engine) Stop() {
	e.running.Stop()
}

// RunSession runs one cycle from WAIT_SYN to CLOSED. Errors and panics of
// any phase end up here and abort the session only.
func (e *Engine) RunSession(ctx context.Context) (report *model.SessionReport, err error) {
	s := newSession(e.settings.Interface, uint16(e.settings.Port), e.policy.Name())
	slog.Info("[ENGINE]new session:%v, waiting for SYN on port %v", s.ID, e.settings.Port)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in phase %v: %v", s.Phase, r)
		}
		report = e.finish(s, err)
	}()

	err = e.converse(ctx, s)
	return report, err
}

func (e *Engine) converse(ctx context.Context, s *Session) error {
	timeouts := e.settings.Timeouts

	// only the first cycle accepts a SYN captured before it began
	var since uint64
	if e.cycles > 0 {
		since = e.capture.Mark()
	}
	e.cycles++

	syn, err := e.await(ctx, s, wait{since: since, timeout: timeouts.SYN, match: s.isSYN})
	if err != nil {
		return err
	}
	if err = s.lock(syn, e.isn()); err != nil {
		return err
	}
	slog.Info("[ENGINE]got SYN, DirectConn:%v, ISN:%v, ACK:%v", s.peer(), s.Ledger.Local, s.Ledger.Ack)

	// mark before emitting so a fast reply cannot be missed
	mark := e.capture.Mark()
	if err = e.send(s, model.SYN|model.ACK, nil); err != nil {
		return err
	}
	if err = e.enter(ctx, s, PhaseSynAckSent); err != nil {
		return err
	}

	if err = e.enter(ctx, s, PhaseWaitHandshakeACK); err != nil {
		return err
	}
	ack, err := e.await(ctx, s, wait{
		since:   mark,
		timeout: timeouts.HandshakeACK,
		match:   s.isHandshakeAck,
		reject:  s.rejectHandshake,
	})
	if err != nil {
		return err
	}
	s.Ledger.OnHandshakeComplete()
	if err = e.enter(ctx, s, PhaseEstablished); err != nil {
		return err
	}

	if err = e.enter(ctx, s, PhaseWaitRequest); err != nil {
		return err
	}
	req, err := e.await(ctx, s, wait{
		since:   ack.Order,
		timeout: timeouts.Request,
		match:   s.isRequest(e.marker),
		reject:  s.rejectRST,
	})
	if err != nil {
		return err
	}
	s.Ledger.OnRequest(req.Seq, len(req.Payload))
	s.report.Request = describe(req.Payload)
	slog.Info("[ENGINE]got request, session:%v, %v bytes, %v", s.ID, len(req.Payload), s.report.Request)

	if err = e.send(s, model.ACK, nil); err != nil {
		return err
	}
	if err = e.enter(ctx, s, PhaseRequestAcked); err != nil {
		return err
	}

	if err = e.enter(ctx, s, PhaseSendingResponse); err != nil {
		return err
	}
	closeMark := e.capture.Mark()
	if err = e.deliver(ctx, s); err != nil {
		return err
	}

	if err = e.enter(ctx, s, PhaseWaitClose); err != nil {
		return err
	}
	fin, err := e.await(ctx, s, wait{
		since:   closeMark,
		timeout: timeouts.FIN,
		match:   s.isFIN,
		reject:  s.rejectRST,
	})
	if err != nil {
		return err
	}
	s.Ledger.OnFIN(fin.Seq, len(fin.Payload))
	if err = e.send(s, model.FIN|model.ACK, nil); err != nil {
		return err
	}
	return e.enter(ctx, s, PhaseClosed)
}

func (e *Engine) finish(s *Session, err error) *model.SessionReport {
	r := s.report
	r.FinishedAt = time.Now()
	if s.Ledger != nil {
		r.BytesSent = int(s.Ledger.Delivered())
	}

	switch {
	case err == nil:
		r.Outcome = model.OutcomeCompleted
		slog.Info("[ENGINE]session:%v completed, DirectConn:%v, sent:%v bytes, cost:%v",
			s.ID, s.peer(), r.BytesSent, r.Duration())
	case errors.Is(err, ErrStopped):
		r.Outcome = model.OutcomeStopped
		r.Error = err.Error()
		slog.Info("[ENGINE]session:%v stopped in phase %v", s.ID, s.Phase)
	default:
		r.Outcome = model.OutcomeAborted
		r.Error = err.Error()
		if IsPhaseTimeout(err) {
			metrics.PhaseTimeouts.WithLabelValues(s.Phase).Inc()
		}
		if s.locked {
			slog.Warn("[ENGINE]session:%v aborted, DirectConn:%v, %v", s.ID, s.peer(), err)
		} else {
			slog.Info("[ENGINE]session:%v, %v", s.ID, err)
		}
	}

	if s.Phase != PhaseClosed {
		if cerr := s.enter(PhaseClosed); cerr != nil {
			slog.Error("[ENGINE]%v", cerr)
		}
	}

	// a cycle that never saw a SYN is not a session worth reporting
	if s.locked {
		metrics.Sessions.WithLabelValues(r.Outcome).Inc()
		if e.publisher != nil {
			e.publisher.Publish(r)
		}
	}
	return r
}

type wait struct {
	since   uint64
	timeout time.Duration
	match   func(*model.Packet) bool
	// a captured packet that makes reject return an error aborts the wait
	reject func(*model.Packet) error
}

// await polls the capture log until a packet captured after w.since matches.
func (e *Engine) await(ctx context.Context, s *Session, w wait) (*model.Packet, error) {
	deadline := time.Now().Add(w.timeout)
	ticker := time.NewTicker(e.settings.PollInterval)
	defer ticker.Stop()

	for {
		if !e.running.Running() || ctx.Err() != nil {
			return nil, ErrStopped
		}
		if p := e.capture.Latest(w.since, w.match); p != nil {
			return p, nil
		}
		if w.reject != nil {
			var rerr error
			e.capture.Latest(w.since, func(p *model.Packet) bool {
				rerr = w.reject(p)
				return rerr != nil
			})
			if rerr != nil {
				return nil, rerr
			}
		}
		if !time.Now().Before(deadline) {
			return nil, &PhaseTimeout{Phase: s.Phase, Timeout: w.timeout}
		}

		select {
		case <-ctx.Done():
			return nil, ErrStopped
		case <-ticker.C:
		}
	}
}

// pause sleeps for d unless the engine is stopped meanwhile
func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ErrStopped
		case <-timer.C:
		}
	}
	if !e.running.Running() {
		return ErrStopped
	}
	return nil
}

func (e *Engine) enter(ctx context.Context, s *Session, phase string) error {
	if phase != PhaseClosed && (!e.running.Running() || ctx.Err() != nil) {
		return ErrStopped
	}
	return s.enter(phase)
}

func (e *Engine) send(s *Session, flags model.Flags, payload []byte) error {
	seg := &sender.Segment{
		SrcIP:   s.LocalIP,
		DstIP:   s.PeerIP,
		SrcPort: s.Port,
		DstPort: s.PeerPort,
		SrcMAC:  s.LocalMAC,
		DstMAC:  s.PeerMAC,
		Flags:   flags,
		Seq:     s.Ledger.Local,
		Ack:     s.Ledger.Ack,
		Window:  uint16(e.settings.Window),
		Payload: payload,
	}
	if err := e.sender.Send(seg); err != nil {
		return &TransientSendError{Phase: s.Phase, Err: err}
	}
	return nil
}

func describe(payload []byte) string {
	if d := proto.Describe(payload); d != "" {
		return d
	}
	return fmt.Sprintf("%d bytes", len(payload))
}
