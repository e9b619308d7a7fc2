// Package memory is a simulated ledger keeping hashlocked outputs in memory.
// It backs development networks, through the remote gateway server, and
// tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
)

const (
	OpLock    = "lock"
	OpSubmit  = "submit"
	OpClaim   = "claim"
	OpReclaim = "reclaim"
	OpQuery   = "query"
)

type Option func(*Ledger)

// WithClock sets the clock used to tell whether locks timed out.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func WithHeight(height uint32) Option {
	return func(l *Ledger) {
		l.height = height
	}
}

type Ledger struct {
	chain string
	now   func() time.Time

	lock      sync.Mutex
	height    uint32
	seq       int
	locks     map[string]*ports.ReceiptStatus
	submitted map[string][]byte
	calls     map[string]int
	failures  map[string][]error
	hook      func(op string)
}

func New(chain string, opts ...Option) *Ledger {
	l := &Ledger{
		chain:     chain,
		now:       time.Now,
		locks:     make(map[string]*ports.ReceiptStatus),
		submitted: make(map[string][]byte),
		calls:     make(map[string]int),
		failures:  make(map[string][]error),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Chain() string {
	return l.chain
}

func (l *Ledger) LockFunds(_ context.Context, req ports.LockRequest) (*ports.LockReceipt, error) {
	if err := l.enter(OpLock); err != nil {
		return nil, errcode.ErrLockFailed.Wrap(err, l.chain)
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	if req.Asset.Chain != l.chain {
		return nil, errcode.ErrLockFailed.Newf("asset %s is not on %s", req.Asset, l.chain)
	}
	if req.Amount == 0 {
		return nil, errcode.ErrLockFailed.New("zero amount")
	}
	if len(req.HashlockDigest) != envelope.DigestSize {
		return nil, errcode.ErrLockFailed.New("invalid hashlock digest")
	}
	if req.TimeoutAt <= l.now().Unix() && (req.TimeoutHeight == 0 || req.TimeoutHeight <= l.height) {
		return nil, errcode.ErrLockFailed.New("timeout already elapsed")
	}
	if req.Recipient == "" {
		return nil, errcode.ErrLockFailed.New("missing recipient")
	}

	l.seq++
	ref := fmt.Sprintf("%s-lock-%d", l.chain, l.seq)
	status := &ports.ReceiptStatus{
		LockRef:        ref,
		TxHash:         txHash(l.chain, "lock", ref),
		Asset:          req.Asset,
		Amount:         req.Amount,
		HashlockDigest: append([]byte(nil), req.HashlockDigest...),
		TimeoutAt:      req.TimeoutAt,
		TimeoutHeight:  req.TimeoutHeight,
		Recipient:      req.Recipient,
		State:          ports.LockActive,
	}
	l.locks[ref] = status

	return &ports.LockReceipt{
		LockRef:       ref,
		TxHash:        status.TxHash,
		TimeoutAt:     req.TimeoutAt,
		TimeoutHeight: req.TimeoutHeight,
	}, nil
}

func (l *Ledger) SubmitTransaction(_ context.Context, txEnvelope []byte) (*ports.TxReceipt, error) {
	if err := l.enter(OpSubmit); err != nil {
		return nil, errcode.ErrSubmissionFailed.Wrap(err, l.chain)
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(txEnvelope) == 0 {
		return nil, errcode.ErrSubmissionFailed.New("empty transaction")
	}
	sum := sha256.Sum256(txEnvelope)
	hash := hex.EncodeToString(sum[:])
	if _, ok := l.submitted[hash]; ok {
		return nil, errcode.ErrSubmissionFailed.Newf("transaction %s already submitted", hash)
	}
	l.submitted[hash] = append([]byte(nil), txEnvelope...)
	return &ports.TxReceipt{TxHash: hash}, nil
}

func (l *Ledger) ClaimWithPreimage(_ context.Context, lockRef string, preimage []byte) (*ports.ClaimReceipt, error) {
	if err := l.enter(OpClaim); err != nil {
		return nil, errcode.ErrClaimFailed.Wrap(err, l.chain)
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	status, ok := l.locks[lockRef]
	if !ok {
		return nil, errcode.ErrClaimFailed.Newf("lock %s not found", lockRef)
	}
	if status.State != ports.LockActive {
		return nil, errcode.ErrClaimFailed.Newf("lock %s is %s", lockRef, status.State)
	}
	if l.timedOut(status) {
		return nil, errcode.ErrClaimFailed.Newf("lock %s timed out", lockRef)
	}
	if !envelope.MatchesDigest(preimage, status.HashlockDigest) {
		return nil, errcode.ErrClaimFailed.New("preimage does not match")
	}

	status.State = ports.LockClaimed
	status.ClaimTxHash = txHash(l.chain, "claim", lockRef)
	status.Preimage = append([]byte(nil), preimage...)
	return &ports.ClaimReceipt{TxHash: status.ClaimTxHash}, nil
}

func (l *Ledger) ReclaimExpired(_ context.Context, lockRef string) (*ports.ReclaimReceipt, error) {
	if err := l.enter(OpReclaim); err != nil {
		return nil, errcode.ErrReclaimFailed.Wrap(err, l.chain)
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	status, ok := l.locks[lockRef]
	if !ok {
		return nil, errcode.ErrReclaimFailed.Newf("lock %s not found", lockRef)
	}
	if status.State != ports.LockActive {
		return nil, errcode.ErrReclaimFailed.Newf("lock %s is %s", lockRef, status.State)
	}
	if !l.timedOut(status) {
		return nil, errcode.ErrReclaimFailed.Newf("lock %s did not time out yet", lockRef)
	}

	status.State = ports.LockReclaimed
	status.ReclaimTxHash = txHash(l.chain, "reclaim", lockRef)
	return &ports.ReclaimReceipt{TxHash: status.ReclaimTxHash}, nil
}

func (l *Ledger) QueryReceipt(_ context.Context, lockRef string) (*ports.ReceiptStatus, error) {
	if err := l.enter(OpQuery); err != nil {
		return nil, err
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	status, ok := l.locks[lockRef]
	if !ok {
		return nil, fmt.Errorf("lock %s not found on %s", lockRef, l.chain)
	}
	cp := *status
	return &cp, nil
}

func (l *Ledger) GetBlockHeight(context.Context) (uint32, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.height, nil
}

// Mine advances the chain by n blocks.
func (l *Ledger) Mine(n uint32) uint32 {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.height += n
	return l.height
}

// FailNext makes the next call of op fail with err.
func (l *Ledger) FailNext(op string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.failures[op] = append(l.failures[op], err)
}

// SetHook installs a function run at the start of every call, outside of the
// ledger lock.
func (l *Ledger) SetHook(hook func(op string)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.hook = hook
}

// Calls returns how many times op was called.
func (l *Ledger) Calls(op string) int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.calls[op]
}

// Locks returns a snapshot of every lock.
func (l *Ledger) Locks() []ports.ReceiptStatus {
	l.lock.Lock()
	defer l.lock.Unlock()
	list := make([]ports.ReceiptStatus, 0, len(l.locks))
	for _, s := range l.locks {
		list = append(list, *s)
	}
	return list
}

func (l *Ledger) enter(op string) error {
	l.lock.Lock()
	l.calls[op]++
	hook := l.hook
	var err error
	if queued := l.failures[op]; len(queued) > 0 {
		err, l.failures[op] = queued[0], queued[1:]
	}
	l.lock.Unlock()

	if hook != nil {
		hook(op)
	}
	return err
}

func (l *Ledger) timedOut(status *ports.ReceiptStatus) bool {
	if status.TimeoutHeight > 0 && l.height >= status.TimeoutHeight {
		return true
	}
	return status.TimeoutAt > 0 && l.now().Unix() >= status.TimeoutAt
}

func txHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
