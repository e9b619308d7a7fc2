package coordinator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/coordinator"
	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway"
	"github.com/ArkLabsHQ/intentd/internal/infrastructure/gateway/memory"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

const safetyMargin = 10 * time.Minute

var (
	xlm = envelope.Asset{Chain: "stellar", Code: "XLM"}
	eth = envelope.Asset{Chain: "ethereum", Code: "ETH"}
)

type clock struct {
	lock sync.Mutex
	t    time.Time
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.t = c.t.Add(d)
}

type job struct {
	at     time.Time
	height uint32
	task   func()
}

type scheduler struct {
	lock sync.Mutex
	jobs map[string]job
}

func newScheduler() *scheduler {
	return &scheduler{jobs: make(map[string]job)}
}

func (s *scheduler) Start() {}
func (s *scheduler) Stop()  {}

func (s *scheduler) ScheduleAtTime(id string, at time.Time, task func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.jobs[id] = job{at: at, task: task}
	return nil
}

func (s *scheduler) ScheduleAtHeight(id, _ string, target uint32, task func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.jobs[id] = job{height: target, task: task}
	return nil
}

func (s *scheduler) ScheduleEvery(time.Duration, func()) error { return nil }

func (s *scheduler) Cancel(id string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.jobs, id)
}

func (s *scheduler) Job(id string) (job, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Fire runs the job now.
func (s *scheduler) Fire(id string) bool {
	s.lock.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.lock.Unlock()
	if ok {
		j.task()
	}
	return ok
}

type swapRepo struct {
	lock   sync.Mutex
	swaps  map[string]domain.SwapSession
	getErr error
}

func (r *swapRepo) failGet(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.getErr = err
}

func newSwapRepo() *swapRepo {
	return &swapRepo{swaps: make(map[string]domain.SwapSession)}
}

func (r *swapRepo) GetAll(context.Context) ([]domain.SwapSession, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	list := make([]domain.SwapSession, 0, len(r.swaps))
	for _, s := range r.swaps {
		list = append(list, s)
	}
	return list, nil
}

func (r *swapRepo) GetPending(ctx context.Context) ([]domain.SwapSession, error) {
	all, _ := r.GetAll(ctx)
	pending := make([]domain.SwapSession, 0, len(all))
	for _, s := range all {
		if !s.Settled {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

func (r *swapRepo) Get(_ context.Context, swapId string) (*domain.SwapSession, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	s, ok := r.swaps[swapId]
	if !ok {
		return nil, errcode.ErrSessionNotFound.Newf("swap %s not found", swapId)
	}
	return &s, nil
}

func (r *swapRepo) Add(_ context.Context, swap domain.SwapSession) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.swaps[swap.Id]; ok {
		return fmt.Errorf("swap %s already exists", swap.Id)
	}
	r.swaps[swap.Id] = swap
	return nil
}

func (r *swapRepo) Update(_ context.Context, swap domain.SwapSession) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.swaps[swap.Id] = swap
	return nil
}

func (r *swapRepo) Close() {}

func (r *swapRepo) get(swapId string) domain.SwapSession {
	s, _ := r.Get(context.Background(), swapId)
	if s == nil {
		return domain.SwapSession{}
	}
	return *s
}

type proofRepo struct {
	lock   sync.Mutex
	proofs map[string]domain.ExecutionProof
	adds   int
}

func newProofRepo() *proofRepo {
	return &proofRepo{proofs: make(map[string]domain.ExecutionProof)}
}

func (r *proofRepo) Add(_ context.Context, proof domain.ExecutionProof) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.adds++
	if _, ok := r.proofs[proof.SwapId]; ok {
		return fmt.Errorf("proof of %s already exists", proof.SwapId)
	}
	r.proofs[proof.SwapId] = proof
	return nil
}

func (r *proofRepo) Get(_ context.Context, swapId string) (*domain.ExecutionProof, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	p, ok := r.proofs[swapId]
	if !ok {
		return nil, errcode.ErrSessionNotFound.Newf("proof of %s not found", swapId)
	}
	return &p, nil
}

func (r *proofRepo) Close() {}

func (r *proofRepo) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.adds
}

// outbox records emitted messages and hands them to deliver, if set.
type outbox struct {
	lock    sync.Mutex
	msgs    []*envelope.Message
	deliver func(*envelope.Message)
}

func (o *outbox) Dispatch(msg *envelope.Message, _ time.Time) {
	o.lock.Lock()
	o.msgs = append(o.msgs, msg)
	deliver := o.deliver
	o.lock.Unlock()
	if deliver != nil {
		deliver(msg)
	}
}

func (o *outbox) count(t envelope.MessageType) int {
	o.lock.Lock()
	defer o.lock.Unlock()
	n := 0
	for _, m := range o.msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

func (o *outbox) last() *envelope.Message {
	o.lock.Lock()
	defer o.lock.Unlock()
	if len(o.msgs) == 0 {
		return nil
	}
	return o.msgs[len(o.msgs)-1]
}

type noAccounts struct{}

func (noAccounts) ResolveAccount(string, string) (string, bool) { return "", false }

type testEnv struct {
	clock    *clock
	xlm      *memory.Ledger
	eth      *memory.Ledger
	gateways *gateway.Registry
}

func newTestEnv(t *testing.T, opts ...memory.Option) *testEnv {
	c := &clock{t: time.Now().Truncate(time.Second)}
	opts = append(opts, memory.WithClock(c.Now))
	xlmLedger := memory.New("stellar", opts...)
	ethLedger := memory.New("ethereum", memory.WithClock(c.Now))
	gateways, err := gateway.NewRegistry(xlmLedger, ethLedger)
	require.NoError(t, err)
	return &testEnv{clock: c, xlm: xlmLedger, eth: ethLedger, gateways: gateways}
}

type node struct {
	id     string
	signer envelope.Signer
	coord  *coordinator.Coordinator
	swaps  *swapRepo
	proofs *proofRepo
	sched  *scheduler
	out    *outbox
}

func (e *testEnv) newNode(t *testing.T, accounts map[string]string) *node {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signer := envelope.NewKeySigner(key)
	n := &node{
		id:     signer.NetworkId(),
		signer: signer,
		swaps:  newSwapRepo(),
		proofs: newProofRepo(),
		sched:  newScheduler(),
		out:    &outbox{},
	}
	n.coord = e.newCoordinator(t, n, accounts)
	require.NoError(t, n.coord.Start(context.Background()))
	t.Cleanup(n.coord.Stop)
	return n
}

func (e *testEnv) newCoordinator(t *testing.T, n *node, accounts map[string]string) *coordinator.Coordinator {
	coord, err := coordinator.New(coordinator.Config{
		SafetyMargin:     safetyMargin,
		ReclaimDeadline:  time.Hour,
		RetryInterval:    10 * time.Millisecond,
		MaxRetryInterval: 50 * time.Millisecond,
		GatewayTimeout:   5 * time.Second,
		Policy: coordinator.Policy{
			MaxSlippageBps:  100,
			MinLockDuration: safetyMargin,
		},
		Accounts: accounts,
		Now:      e.clock.Now,
	}, n.signer, e.gateways, n.swaps, n.proofs, n.sched, n.out, noAccounts{})
	require.NoError(t, err)
	return coord
}

// connect delivers the messages of each node to the other one, in order,
// through the wire encoding.
func connect(t *testing.T, a, b *node) func() []error {
	var (
		lock sync.Mutex
		errs []error
	)
	record := func(err error) {
		lock.Lock()
		defer lock.Unlock()
		errs = append(errs, err)
	}
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	pipe := func(to *node) func(*envelope.Message) {
		ch := make(chan *envelope.Message, 64)
		go func() {
			for {
				var msg *envelope.Message
				select {
				case msg = <-ch:
				case <-done:
					return
				}
				raw, err := envelope.Encode(msg)
				if err != nil {
					record(err)
					continue
				}
				decoded, err := envelope.Decode(raw)
				if err != nil {
					record(err)
					continue
				}
				if err := envelope.Verify(decoded); err != nil {
					record(err)
					continue
				}
				if _, err := to.coord.HandleMessage(context.Background(), decoded); err != nil {
					record(fmt.Errorf("%s: %w", decoded.Type, err))
				}
			}
		}()
		return func(msg *envelope.Message) {
			select {
			case ch <- msg:
			case <-done:
			}
		}
	}
	a.out.deliver = pipe(b)
	b.out.deliver = pipe(a)
	return func() []error {
		lock.Lock()
		defer lock.Unlock()
		return append([]error(nil), errs...)
	}
}

// newOffer returns an offer of 100 XLM for 7 ETH signed by from.
func newOffer(t *testing.T, from *node, to string, timeoutAt int64, preimage []byte) *envelope.Message {
	intentId := envelope.NewIntentId()
	msg := &envelope.Message{
		Type:      envelope.TypeSwapOffer,
		IntentId:  intentId,
		SwapId:    envelope.DeriveSwapId(from.id, intentId),
		Recipient: to,
		Expiry:    timeoutAt,
		Payload: envelope.SwapOffer{
			From:           xlm,
			To:             eth,
			Amount:         100,
			CounterAmount:  7,
			SlippageBps:    50,
			HashlockDigest: envelope.HashPreimage(preimage),
			TimeoutAt:      timeoutAt,
			ReceiveAccount: "GALICE",
		},
	}
	require.NoError(t, envelope.Sign(msg, from.signer))
	return msg
}

func signed(t *testing.T, from *node, to, swapId string, payload envelope.Payload) *envelope.Message {
	msg := &envelope.Message{
		Type:      payload.Type(),
		IntentId:  envelope.NewIntentId(),
		SwapId:    swapId,
		Recipient: to,
		Expiry:    time.Now().Add(time.Hour).Unix(),
		Payload:   payload,
	}
	require.NoError(t, envelope.Sign(msg, from.signer))
	return msg
}

func reclaimJob(swapId string) string {
	return swapId + "/reclaim"
}
