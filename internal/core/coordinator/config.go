package coordinator

import (
	"fmt"
	"time"

	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
)

const (
	defaultReclaimDeadline  = 24 * time.Hour
	defaultRetryInterval    = 5 * time.Second
	defaultMaxRetryInterval = 10 * time.Minute
	defaultGatewayTimeout   = time.Minute
	defaultMessageTTL       = 10 * time.Minute
	defaultMailboxSize      = 32

	maxBps = 10_000
)

type AssetPair struct {
	From envelope.Asset
	To   envelope.Asset
}

// Policy bounds the offers a responder accepts.
type Policy struct {
	// Pairs lists the accepted (from, to) pairs, any pair is accepted when
	// empty as long as both chains have a gateway.
	Pairs          []AssetPair
	MinAmount      uint64
	MaxAmount      uint64
	MaxSlippageBps uint32
	// MinLockDuration is the shortest time left before the offer timeout.
	MinLockDuration time.Duration
}

type Config struct {
	// SafetyMargin is how much later than ours the counterparty lock must
	// time out. There is no default.
	SafetyMargin time.Duration
	// ReclaimDeadline is how long after the own lock timeout reclaims are
	// retried before the session is handed to the operator.
	ReclaimDeadline  time.Duration
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
	GatewayTimeout   time.Duration
	MessageTTL       time.Duration
	MailboxSize      int
	Policy           Policy
	// Accounts maps a chain to the account where this node receives funds.
	Accounts map[string]string
	Now      func() time.Time
}

func (c *Config) validate() error {
	if c.SafetyMargin <= 0 {
		return fmt.Errorf("missing safety margin")
	}
	// Lock timeouts are unix seconds.
	if c.SafetyMargin < time.Second {
		return fmt.Errorf("safety margin must be at least 1s, got %s", c.SafetyMargin)
	}
	if c.Policy.MaxSlippageBps > maxBps {
		return fmt.Errorf("max slippage must not exceed %d bps", maxBps)
	}
	if c.ReclaimDeadline <= 0 {
		c.ReclaimDeadline = defaultReclaimDeadline
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.MaxRetryInterval < c.RetryInterval {
		c.MaxRetryInterval = defaultMaxRetryInterval
		if c.MaxRetryInterval < c.RetryInterval {
			c.MaxRetryInterval = c.RetryInterval
		}
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = defaultGatewayTimeout
	}
	if c.MessageTTL <= 0 {
		c.MessageTTL = defaultMessageTTL
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = defaultMailboxSize
	}
	if c.Accounts == nil {
		c.Accounts = make(map[string]string)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// marginSeconds is SafetyMargin in whole seconds, rounded up.
func (c *Config) marginSeconds() int64 {
	return int64((c.SafetyMargin + time.Second - 1) / time.Second)
}

// backoff returns the delay before the given retry attempt, doubling from
// RetryInterval up to MaxRetryInterval.
func (c *Config) backoff(attempt int) time.Duration {
	delay := c.RetryInterval
	for i := 1; i < attempt && delay < c.MaxRetryInterval; i++ {
		delay *= 2
	}
	if delay > c.MaxRetryInterval {
		delay = c.MaxRetryInterval
	}
	return delay
}

func (p Policy) supports(from, to envelope.Asset) bool {
	if len(p.Pairs) == 0 {
		return true
	}
	for _, pair := range p.Pairs {
		if pair.From == from && pair.To == to {
			return true
		}
	}
	return false
}

func (p Policy) check(offer envelope.SwapOffer, timeLeft time.Duration) error {
	if !p.supports(offer.From, offer.To) {
		return errcode.ErrPolicyViolation.Newf("unsupported pair %s/%s", offer.From, offer.To)
	}
	if offer.Amount < p.MinAmount {
		return errcode.ErrPolicyViolation.Newf("amount %d below minimum %d", offer.Amount, p.MinAmount)
	}
	if p.MaxAmount > 0 && offer.Amount > p.MaxAmount {
		return errcode.ErrPolicyViolation.Newf("amount %d above maximum %d", offer.Amount, p.MaxAmount)
	}
	if offer.CounterAmount == 0 {
		return errcode.ErrPolicyViolation.New("missing counter amount")
	}
	if offer.SlippageBps > p.MaxSlippageBps {
		return errcode.ErrPolicyViolation.Newf(
			"slippage %d bps above maximum %d bps", offer.SlippageBps, p.MaxSlippageBps,
		)
	}
	if timeLeft < p.MinLockDuration {
		return errcode.ErrPolicyViolation.Newf(
			"offer times out in %s, at least %s required", timeLeft, p.MinLockDuration,
		)
	}
	return nil
}

// minCounterAmount is amount reduced by the accepted slippage.
func minCounterAmount(amount uint64, slippageBps uint32) uint64 {
	bps := uint64(slippageBps)
	if bps > maxBps {
		bps = maxBps
	}
	cut := (amount/maxBps)*bps + (amount%maxBps)*bps/maxBps
	return amount - cut
}
