package envelope

import (
	"fmt"
	"sort"

	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"google.golang.org/protobuf/encoding/protowire"
)

// Header field numbers. The numbering and the emission order below are part
// of the signed format and must never change within a version.
const (
	fieldVersion   protowire.Number = 1
	fieldType      protowire.Number = 2
	fieldIntentId  protowire.Number = 3
	fieldSwapId    protowire.Number = 4
	fieldSender    protowire.Number = 5
	fieldRecipient protowire.Number = 6
	fieldExpiry    protowire.Number = 7
	fieldPayload   protowire.Number = 8
	fieldSignature protowire.Number = 15
)

// Encode returns the wire representation of msg, signature included.
func Encode(msg *Message) ([]byte, error) {
	return encode(msg, true)
}

// SigningBytes returns the canonical bytes covered by the signature, that is
// the wire representation with the signature left out.
func SigningBytes(msg *Message) ([]byte, error) {
	return encode(msg, false)
}

func encode(msg *Message, withSignature bool) ([]byte, error) {
	if msg == nil {
		return nil, errcode.ErrMalformedEnvelope.New("nil message")
	}
	if msg.Payload == nil {
		return nil, errcode.ErrMalformedEnvelope.New("missing payload")
	}
	if msg.Payload.Type() != msg.Type {
		return nil, errcode.ErrMalformedEnvelope.Newf(
			"payload type %s does not match message type %s", msg.Payload.Type(), msg.Type,
		)
	}
	payload, err := encodePayload(msg.Payload)
	if err != nil {
		return nil, err
	}

	version := msg.Version
	if version == 0 {
		version = Version
	}

	e := &encoder{}
	e.uint(fieldVersion, uint64(version))
	e.uint(fieldType, uint64(msg.Type))
	e.string(fieldIntentId, msg.IntentId)
	e.string(fieldSwapId, msg.SwapId)
	e.string(fieldSender, msg.Sender)
	e.string(fieldRecipient, msg.Recipient)
	e.int(fieldExpiry, msg.Expiry)
	e.message(fieldPayload, payload)
	if withSignature {
		e.bytes(fieldSignature, msg.Signature)
	}
	return e.buf, nil
}

// Decode parses buf into a Message. It fails with ErrMalformedEnvelope if the
// version or type tag is unknown or if any required field is missing.
func Decode(buf []byte) (*Message, error) {
	var (
		msg        Message
		rawPayload []byte
		hasPayload bool
	)
	err := walk(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldVersion:
			v, n, err := consumeUint(typ, b)
			msg.Version = uint32(v)
			return n, err
		case fieldType:
			v, n, err := consumeUint(typ, b)
			msg.Type = MessageType(v)
			return n, err
		case fieldIntentId:
			return consumeString(typ, b, &msg.IntentId)
		case fieldSwapId:
			return consumeString(typ, b, &msg.SwapId)
		case fieldSender:
			return consumeString(typ, b, &msg.Sender)
		case fieldRecipient:
			return consumeString(typ, b, &msg.Recipient)
		case fieldExpiry:
			v, n, err := consumeUint(typ, b)
			msg.Expiry = int64(v)
			return n, err
		case fieldPayload:
			hasPayload = true
			return consumeBytes(typ, b, &rawPayload)
		case fieldSignature:
			return consumeBytes(typ, b, &msg.Signature)
		}
		return 0, nil
	})
	if err != nil {
		return nil, errcode.ErrMalformedEnvelope.New(err.Error())
	}

	if msg.Version != Version {
		return nil, errcode.ErrMalformedEnvelope.Newf("unsupported version %d", msg.Version)
	}
	if !msg.Type.Valid() {
		return nil, errcode.ErrMalformedEnvelope.Newf("unknown message type %d", uint8(msg.Type))
	}
	if msg.IntentId == "" {
		return nil, errcode.ErrMalformedEnvelope.New("missing intent id")
	}
	if msg.Sender == "" {
		return nil, errcode.ErrMalformedEnvelope.New("missing sender")
	}
	if msg.Expiry <= 0 {
		return nil, errcode.ErrMalformedEnvelope.New("missing expiry")
	}
	if msg.Type.IsSwapMessage() && msg.SwapId == "" {
		return nil, errcode.ErrMalformedEnvelope.Newf("missing swap id for %s", msg.Type)
	}
	if !hasPayload {
		return nil, errcode.ErrMalformedEnvelope.New("missing payload")
	}

	payload, err := decodePayload(msg.Type, rawPayload)
	if err != nil {
		return nil, errcode.ErrMalformedEnvelope.Newf("%s payload: %s", msg.Type, err)
	}
	if err := payload.validate(); err != nil {
		return nil, errcode.ErrMalformedEnvelope.Newf("%s payload: %s", msg.Type, err)
	}
	msg.Payload = payload
	return &msg, nil
}

func encodePayload(p Payload) ([]byte, error) {
	e := &encoder{}
	switch v := p.(type) {
	case PaymentRequest:
		e.string(1, v.Chain)
		e.bytes(2, v.TxEnvelope)
		keys := make([]string, 0, len(v.Metadata))
		for k := range v.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entry := &encoder{}
			entry.string(1, k)
			entry.string(2, v.Metadata[k])
			e.message(3, entry.buf)
		}
	case SwapOffer:
		e.message(1, encodeAsset(v.From))
		e.message(2, encodeAsset(v.To))
		e.uint(3, v.Amount)
		e.uint(4, v.CounterAmount)
		e.uint(5, uint64(v.SlippageBps))
		e.bytes(6, v.HashlockDigest)
		e.int(7, v.TimeoutAt)
		e.uint(8, uint64(v.TimeoutHeight))
		e.string(9, v.ReceiveAccount)
	case TrustlineUpdate:
		e.message(1, encodeAsset(v.Asset))
		e.uint(2, v.Limit)
		e.bool(3, v.Authorized)
		e.bytes(4, v.TxEnvelope)
	case LockConfirmation:
		e.string(1, v.LockRef)
		e.string(2, v.TxHash)
		e.message(3, encodeAsset(v.Asset))
		e.uint(4, v.Amount)
		e.bytes(5, v.HashlockDigest)
		e.int(6, v.TimeoutAt)
		e.uint(7, uint64(v.TimeoutHeight))
		e.string(8, v.ReceiveAccount)
	case ClaimNotification:
		e.string(1, v.LockRef)
		e.string(2, v.TxHash)
		e.bytes(3, v.Preimage)
	case ExecutionProof:
		e.string(1, v.SourceChainTxHash)
		e.string(2, v.DestChainTxHash)
		e.int(3, v.IssuedAt)
	case SwapAbort:
		e.uint(1, uint64(v.Code))
		e.string(2, v.Reason)
	case Acknowledgement:
		e.string(1, v.RefIntentId)
		e.bool(2, v.Accepted)
		e.uint(3, uint64(v.Code))
		e.string(4, v.Reason)
		e.string(5, v.TxHash)
	default:
		return nil, errcode.ErrMalformedEnvelope.Newf("unsupported payload %T", p)
	}
	return e.buf, nil
}

func decodePayload(t MessageType, b []byte) (Payload, error) {
	switch t {
	case TypePaymentRequest:
		var p PaymentRequest
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeString(typ, b, &p.Chain)
			case 2:
				return consumeBytes(typ, b, &p.TxEnvelope)
			case 3:
				var entry []byte
				n, err := consumeBytes(typ, b, &entry)
				if err != nil {
					return n, err
				}
				var key, value string
				if err := walk(entry, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					switch num {
					case 1:
						return consumeString(typ, b, &key)
					case 2:
						return consumeString(typ, b, &value)
					}
					return 0, nil
				}); err != nil {
					return n, err
				}
				if p.Metadata == nil {
					p.Metadata = make(map[string]string)
				}
				if _, ok := p.Metadata[key]; ok {
					return n, fmt.Errorf("duplicate metadata key %q", key)
				}
				p.Metadata[key] = value
				return n, nil
			}
			return 0, nil
		})
		return p, err
	case TypeSwapOffer:
		var p SwapOffer
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeAsset(typ, b, &p.From)
			case 2:
				return consumeAsset(typ, b, &p.To)
			case 3:
				return consumeUint64(typ, b, &p.Amount)
			case 4:
				return consumeUint64(typ, b, &p.CounterAmount)
			case 5:
				return consumeUint32(typ, b, &p.SlippageBps)
			case 6:
				return consumeBytes(typ, b, &p.HashlockDigest)
			case 7:
				return consumeInt64(typ, b, &p.TimeoutAt)
			case 8:
				return consumeUint32(typ, b, &p.TimeoutHeight)
			case 9:
				return consumeString(typ, b, &p.ReceiveAccount)
			}
			return 0, nil
		})
		return p, err
	case TypeTrustlineUpdate:
		var p TrustlineUpdate
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeAsset(typ, b, &p.Asset)
			case 2:
				return consumeUint64(typ, b, &p.Limit)
			case 3:
				return consumeBool(typ, b, &p.Authorized)
			case 4:
				return consumeBytes(typ, b, &p.TxEnvelope)
			}
			return 0, nil
		})
		return p, err
	case TypeLockConfirmation:
		var p LockConfirmation
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeString(typ, b, &p.LockRef)
			case 2:
				return consumeString(typ, b, &p.TxHash)
			case 3:
				return consumeAsset(typ, b, &p.Asset)
			case 4:
				return consumeUint64(typ, b, &p.Amount)
			case 5:
				return consumeBytes(typ, b, &p.HashlockDigest)
			case 6:
				return consumeInt64(typ, b, &p.TimeoutAt)
			case 7:
				return consumeUint32(typ, b, &p.TimeoutHeight)
			case 8:
				return consumeString(typ, b, &p.ReceiveAccount)
			}
			return 0, nil
		})
		return p, err
	case TypeClaimNotification:
		var p ClaimNotification
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeString(typ, b, &p.LockRef)
			case 2:
				return consumeString(typ, b, &p.TxHash)
			case 3:
				return consumeBytes(typ, b, &p.Preimage)
			}
			return 0, nil
		})
		return p, err
	case TypeExecutionProof:
		var p ExecutionProof
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeString(typ, b, &p.SourceChainTxHash)
			case 2:
				return consumeString(typ, b, &p.DestChainTxHash)
			case 3:
				return consumeInt64(typ, b, &p.IssuedAt)
			}
			return 0, nil
		})
		return p, err
	case TypeSwapAbort:
		var p SwapAbort
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeUint32(typ, b, &p.Code)
			case 2:
				return consumeString(typ, b, &p.Reason)
			}
			return 0, nil
		})
		return p, err
	case TypeAcknowledgement:
		var p Acknowledgement
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				return consumeString(typ, b, &p.RefIntentId)
			case 2:
				return consumeBool(typ, b, &p.Accepted)
			case 3:
				return consumeUint32(typ, b, &p.Code)
			case 4:
				return consumeString(typ, b, &p.Reason)
			case 5:
				return consumeString(typ, b, &p.TxHash)
			}
			return 0, nil
		})
		return p, err
	}
	return nil, fmt.Errorf("unknown message type %d", uint8(t))
}

func encodeAsset(a Asset) []byte {
	e := &encoder{}
	e.string(1, a.Chain)
	e.string(2, a.Code)
	e.string(3, a.Issuer)
	return e.buf
}

func consumeAsset(typ protowire.Type, b []byte, out *Asset) (int, error) {
	var raw []byte
	n, err := consumeBytes(typ, b, &raw)
	if err != nil {
		return n, err
	}
	err = walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &out.Chain)
		case 2:
			return consumeString(typ, b, &out.Code)
		case 3:
			return consumeString(typ, b, &out.Issuer)
		}
		return 0, nil
	})
	return n, err
}

// encoder appends fields in call order and omits zero values, which keeps
// the output canonical for a given logical message.
type encoder struct {
	buf []byte
}

func (e *encoder) uint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *encoder) int(num protowire.Number, v int64) {
	e.uint(num, uint64(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if v {
		e.uint(num, 1)
	}
}

func (e *encoder) string(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

// message always emits the field, even when empty, so that presence of an
// empty body can be told apart from a missing one.
func (e *encoder) message(num protowire.Number, v []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
}

// walk iterates the fields of b. visit returns how many bytes of the value it
// consumed, or 0 to have an unknown field skipped.
func walk(b []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeUint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %d, want varint", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeUint64(typ protowire.Type, b []byte, out *uint64) (int, error) {
	v, n, err := consumeUint(typ, b)
	*out = v
	return n, err
}

func consumeUint32(typ protowire.Type, b []byte, out *uint32) (int, error) {
	v, n, err := consumeUint(typ, b)
	if err == nil && v > 1<<32-1 {
		return 0, fmt.Errorf("value %d overflows uint32", v)
	}
	*out = uint32(v)
	return n, err
}

func consumeInt64(typ protowire.Type, b []byte, out *int64) (int, error) {
	v, n, err := consumeUint(typ, b)
	*out = int64(v)
	return n, err
}

func consumeBool(typ protowire.Type, b []byte, out *bool) (int, error) {
	v, n, err := consumeUint(typ, b)
	*out = v != 0
	return n, err
}

func consumeString(typ protowire.Type, b []byte, out *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("unexpected wire type %d, want bytes", typ)
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*out = v
	return n, nil
}

func consumeBytes(typ protowire.Type, b []byte, out *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, fmt.Errorf("unexpected wire type %d, want bytes", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if len(v) > 0 {
		*out = append([]byte(nil), v...)
	}
	return n, nil
}
