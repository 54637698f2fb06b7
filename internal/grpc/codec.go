package grpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/GriffinCanCode/integral/internal/protocol"
)

// codecName is the gRPC content subtype for protocol frames.
const codecName = "integral"

func init() {
	encoding.RegisterCodec(frameCodec{})
}

// frameCodec marshals protocol.Message values as protowire frames.
type frameCodec struct{}

func (frameCodec) Name() string { return codecName }

func (frameCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *protocol.Message:
		return protocol.MarshalFrame(*m)
	case protocol.Message:
		return protocol.MarshalFrame(m)
	default:
		return nil, fmt.Errorf("%s codec cannot marshal %T", codecName, v)
	}
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*protocol.Message)
	if !ok {
		return fmt.Errorf("%s codec cannot unmarshal into %T", codecName, v)
	}
	decoded, err := protocol.UnmarshalFrame(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}
