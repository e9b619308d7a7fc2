package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

var errSessionClosed = errors.New("session closed")

type eventKind int

const (
	eventStart eventKind = iota
	eventMessage
	eventTick
	eventExpire
	eventAbort
	eventRejected
	eventReclaim
)

type command struct {
	kind   eventKind
	msg    *envelope.Message
	reason string
	refId  string
	code   uint32
	async  bool
	reply  chan reply
}

type reply struct {
	res *TransitionResult
	err error
}

// session is the actor owning one swap. swap is only touched by the run
// goroutine.
type session struct {
	id      string
	c       *Coordinator
	swap    domain.SwapSession
	mailbox chan command
	done    chan struct{}

	awaiting atomic.Bool

	abortLock   sync.Mutex
	abortReason *string

	res *TransitionResult
	log *log.Entry
}

func newSession(c *Coordinator, swap domain.SwapSession) *session {
	return &session{
		id:      swap.Id,
		c:       c,
		swap:    swap,
		mailbox: make(chan command, c.cfg.MailboxSize),
		done:    make(chan struct{}),
		log: log.WithFields(log.Fields{
			"swap": swap.Id,
			"role": swap.Role.String(),
			"peer": swap.Counterparty(),
		}),
	}
}

// send enqueues cmd and waits for its outcome. It blocks while the mailbox
// is full, commands are never dropped.
func (s *session) send(ctx context.Context, cmd command) (*TransitionResult, error) {
	if !cmd.async {
		cmd.reply = make(chan reply, 1)
	}

	select {
	case s.mailbox <- cmd:
	case <-s.done:
		return nil, errSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if cmd.async {
		return nil, nil
	}

	select {
	case r := <-cmd.reply:
		return r.res, r.err
	case <-s.done:
		select {
		case r := <-cmd.reply:
			return r.res, r.err
		default:
			return nil, errSessionClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *session) run(ctx context.Context) {
	defer close(s.done)
	defer s.c.release(s)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.mailbox:
			res, err := s.handle(ctx, cmd)
			if cmd.reply != nil {
				cmd.reply <- reply{res, err}
			}
			if s.swap.Settled {
				s.log.WithField("state", s.swap.State).Debug("session settled")
				return
			}
		}
	}
}

func (s *session) handle(ctx context.Context, cmd command) (*TransitionResult, error) {
	s.res = &TransitionResult{SwapId: s.id}
	defer func() {
		s.res = nil
	}()

	// A pending abort request prevents any other transition.
	if cmd.kind != eventReclaim && !s.swap.State.IsTerminal() {
		if reason, ok := s.abortRequested(); ok {
			s.abort(ctx, errcode.ErrPolicyViolation.Code(), reason, true)
		}
	}

	var err error
	switch cmd.kind {
	case eventStart:
		err = s.start(ctx)
	case eventMessage:
		err = s.handleMessage(ctx, cmd.msg)
	case eventTick:
		s.tick(ctx)
	case eventExpire:
		s.expire(ctx, cmd.reason)
	case eventAbort:
		// Already applied above, unless the session was terminal.
		if !s.swap.State.IsTerminal() {
			s.abort(ctx, errcode.ErrPolicyViolation.Code(), cmd.reason, true)
		}
	case eventRejected:
		s.rejected(ctx, cmd)
	case eventReclaim:
		s.reclaim(ctx)
	}

	res := s.res
	res.State = s.swap.State
	return res, err
}

func (s *session) start(ctx context.Context) error {
	if s.swap.State != domain.SwapProposed {
		return errcode.ErrDuplicateIntent.Newf("swap %s already started", s.id)
	}
	s.scheduleExpiry()

	if s.swap.Role == domain.RoleInitiator {
		return s.sendOffer()
	}
	return s.lockOffered(ctx)
}

// resume restarts the session after a restart of the node.
func (s *session) resume() {
	if s.swap.State.IsTerminal() {
		if s.swap.NeedsReclaim() {
			s.scheduleReclaim(time.Unix(s.swap.OwnLock.TimeoutAt, 0))
		} else {
			s.c.post(s.id, eventReclaim)
		}
		return
	}
	s.scheduleExpiry()
	// The outcome of a lock in flight when the node stopped is unknown.
	if s.swap.Role == domain.RoleResponder && s.swap.State == domain.SwapProposed {
		s.requestAbort("interrupted while locking")
		s.c.post(s.id, eventAbort)
	}
}

func (s *session) handleMessage(ctx context.Context, msg *envelope.Message) error {
	if msg.Sender != s.swap.Counterparty() {
		return errcode.ErrUntrustedIdentity.Newf("%s is not a party of swap %s", msg.Sender, s.id)
	}
	if s.swap.State.IsTerminal() {
		return errcode.ErrDuplicateIntent.Newf("swap %s is %s", s.id, s.swap.State)
	}

	switch p := msg.Payload.(type) {
	case envelope.SwapAbort:
		s.log.WithField("reason", p.Reason).Info("counterparty aborted")
		s.abort(ctx, p.Code, "counterparty abort: "+p.Reason, false)
		return nil
	case envelope.LockConfirmation:
		if s.swap.Role == domain.RoleResponder && s.swap.State == domain.SwapLocked {
			return s.counterLocked(ctx, p)
		}
		if s.swap.Role == domain.RoleInitiator && s.swap.State == domain.SwapProposed {
			return s.responderLocked(ctx, p)
		}
	case envelope.ClaimNotification:
		if s.swap.Role == domain.RoleResponder && s.swap.State == domain.SwapCounterLocked {
			return s.preimageRevealed(ctx, p)
		}
		if s.swap.State == domain.SwapClaimed {
			s.confirm(ctx)
			return nil
		}
	case envelope.ExecutionProof:
		if s.swap.State == domain.SwapClaimed {
			s.confirm(ctx)
			return nil
		}
	}
	return errcode.ErrDuplicateIntent.Newf("unexpected %s for swap %s in state %s", msg.Type, s.id, s.swap.State)
}

func (s *session) tick(ctx context.Context) {
	if s.swap.State.IsTerminal() {
		return
	}
	if s.c.now().Unix() >= s.expiresAt() {
		s.expire(ctx, "timeout elapsed")
		return
	}
	switch {
	case s.swap.State == domain.SwapClaimed:
		s.confirm(ctx)
	case s.swap.State == domain.SwapCounterLocked && len(s.swap.Preimage) > 0 && s.swap.OwnClaim == nil:
		if s.claimCounter(ctx) {
			s.confirm(ctx)
		}
	}
}

func (s *session) rejected(ctx context.Context, cmd command) {
	entry := s.log.WithFields(log.Fields{"intent": cmd.refId, "code": cmd.code})
	if s.swap.Role == domain.RoleInitiator && s.swap.State == domain.SwapProposed &&
		cmd.refId == s.swap.OfferIntentId {
		entry.WithField("reason", cmd.reason).Info("offer rejected by responder")
		s.abort(ctx, cmd.code, "offer rejected: "+cmd.reason, false)
		return
	}
	entry.WithField("reason", cmd.reason).Warn("message rejected by counterparty")
}

func (s *session) requestAbort(reason string) {
	s.abortLock.Lock()
	defer s.abortLock.Unlock()
	if s.abortReason == nil {
		s.abortReason = &reason
	}
}

func (s *session) abortRequested() (string, bool) {
	s.abortLock.Lock()
	defer s.abortLock.Unlock()
	if s.abortReason == nil {
		return "", false
	}
	return *s.abortReason, true
}

// cancelled applies a pending abort request once a gateway call resolved.
func (s *session) cancelled(ctx context.Context) bool {
	reason, ok := s.abortRequested()
	if !ok || s.swap.State.IsTerminal() {
		return false
	}
	s.abort(ctx, errcode.ErrPolicyViolation.Code(), reason, true)
	return true
}

// call runs a gateway call, the session is awaiting until it resolves.
func (s *session) call(ctx context.Context, fn func(ctx context.Context) error) error {
	s.awaiting.Store(true)
	defer s.awaiting.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.c.cfg.GatewayTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *session) transition(ctx context.Context, state domain.SwapState) {
	from := s.swap.State
	s.swap.State = state
	s.persist(ctx)
	s.log.WithFields(log.Fields{"from": from, "state": state}).Info("swap transition")
}

func (s *session) persist(ctx context.Context) {
	s.swap.UpdatedAt = s.c.now().Unix()
	if err := s.c.swaps.Update(ctx, s.swap); err != nil {
		s.log.WithError(err).Error("failed to persist swap")
	}
}

// emit signs and dispatches a message to the counterparty.
func (s *session) emit(payload envelope.Payload) {
	msg, err := s.c.sign(&s.swap, payload)
	if err != nil {
		s.log.WithError(err).Errorf("failed to sign %s", payload.Type())
		return
	}
	s.res.Outbound = append(s.res.Outbound, msg)
	s.c.outbox.Dispatch(msg, s.c.deadline(&s.swap))
}

// expiresAt is when the session stops waiting for the counterparty. A
// claimed initiator waits for its own lock to be claimed until that lock
// times out, SafetyMargin after the responder one.
func (s *session) expiresAt() int64 {
	if s.swap.Role == domain.RoleInitiator && s.swap.State == domain.SwapClaimed && s.swap.OwnLock != nil {
		return s.swap.OwnLock.TimeoutAt
	}
	return s.swap.TimeoutAt
}

func (s *session) scheduleExpiry() {
	id := s.id
	if err := s.c.scheduler.ScheduleAtTime(
		jobId(id, jobExpireAt), time.Unix(s.expiresAt(), 0),
		func() { s.c.post(id, eventTick) },
	); err != nil {
		s.log.WithError(err).Warn("failed to schedule expiry, relying on sweep")
	}
	if s.swap.TimeoutHeight > 0 {
		if err := s.c.scheduler.ScheduleAtHeight(
			jobId(id, jobExpireHeight), s.swap.From.Chain, s.swap.TimeoutHeight,
			func() { s.c.post(id, eventExpire) },
		); err != nil {
			s.log.WithError(err).Warn("failed to schedule height expiry")
		}
	}
}

func (s *session) scheduleReclaim(at time.Time) {
	id := s.id
	if err := s.c.scheduler.ScheduleAtTime(
		jobId(id, jobReclaim), at, func() { s.c.post(id, eventReclaim) },
	); err != nil {
		s.log.WithError(err).Error("failed to schedule reclaim")
		return
	}
	s.log.WithField("at", at.UTC()).Info("reclaim scheduled")
}
