package application

import (
	"context"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	log "github.com/sirupsen/logrus"
)

// executor validates payment and trustline intents and forwards their
// transaction envelope to the gateway of their chain. There is no session:
// the outcome is returned to the sender right away.
type executor struct {
	gateways ports.GatewayRegistry
	timeout  time.Duration
}

func (e *executor) execute(ctx context.Context, msg *envelope.Message) (*ports.TxReceipt, error) {
	var chain string
	var tx []byte
	switch p := msg.Payload.(type) {
	case envelope.PaymentRequest:
		chain, tx = p.Chain, p.TxEnvelope
	case envelope.TrustlineUpdate:
		chain, tx = p.Asset.Chain, p.TxEnvelope
		if len(tx) == 0 {
			return nil, errcode.ErrMalformedEnvelope.New("trustline update without transaction")
		}
	default:
		return nil, errcode.ErrMalformedEnvelope.Newf("%s is not a stateless intent", msg.Type)
	}

	gw, err := e.gateways.Gateway(chain)
	if err != nil {
		return nil, errcode.ErrPolicyViolation.Wrap(err, "gateway")
	}
	if validator, ok := e.gateways.Validator(chain); ok {
		if err := validator.Validate(tx); err != nil {
			return nil, errcode.ErrMalformedEnvelope.Wrap(err, "invalid "+chain+" transaction")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	receipt, err := gw.SubmitTransaction(ctx, tx)
	if err != nil {
		return nil, errcode.ErrSubmissionFailed.Wrap(err, "submit")
	}
	log.WithFields(log.Fields{
		"peer":   msg.Sender,
		"intent": msg.IntentId,
		"chain":  chain,
		"tx":     receipt.TxHash,
	}).Infof("%s submitted", msg.Type)
	return receipt, nil
}
