package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frame field numbers.
const (
	fieldTag     protowire.Number = 1
	fieldPayload protowire.Number = 2
)

// maxPayload bounds payload values accepted from a frame.
const maxPayload = 2

// AppendFrame appends the wire encoding of m to b. Payload values are written
// as their IEEE-754 bit patterns, so decoding reproduces them exactly.
func AppendFrame(b []byte, m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, fieldTag, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(m.Tag)))
	for _, v := range m.Payload {
		b = protowire.AppendTag(b, fieldPayload, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b, nil
}

// MarshalFrame encodes m as a standalone frame.
func MarshalFrame(m Message) ([]byte, error) {
	return AppendFrame(make([]byte, 0, 2+maxPayload*9), m)
}

// UnmarshalFrame decodes a frame produced by AppendFrame.
func UnmarshalFrame(b []byte) (Message, error) {
	var (
		m      Message
		hasTag bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTag && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			if v > math.MaxInt32 {
				return Message{}, fmt.Errorf("%w: tag %d out of range", ErrMalformedFrame, v)
			}
			m.Tag = Tag(v)
			hasTag = true
			b = b[n:]
		case num == fieldPayload && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
			if len(m.Payload) == maxPayload {
				return Message{}, fmt.Errorf("%w: payload exceeds %d values", ErrMalformedFrame, maxPayload)
			}
			m.Payload = append(m.Payload, math.Float64frombits(v))
			b = b[n:]
		default:
			return Message{}, fmt.Errorf("%w: unexpected field %d (wire type %d)", ErrMalformedFrame, num, typ)
		}
	}

	if !hasTag {
		return Message{}, fmt.Errorf("%w: missing tag", ErrMalformedFrame)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
