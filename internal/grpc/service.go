package grpc

import (
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/transport"
)

const (
	serviceName   = "integral.v1.Exchange"
	sessionMethod = "/" + serviceName + "/Session"

	rankKey    = "x-integral-rank"
	sizeKey    = "x-integral-size"
	runKey     = "x-integral-run"
	sessionKey = "x-integral-session"
)

// exchangeServer is the handler type of the Exchange service.
type exchangeServer interface {
	Session(stream grpc.ServerStream) error
}

var exchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "integral/v1/exchange.proto",
}

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(exchangeServer).Session(stream)
}

// peerIdentity reads the rank and group size a worker announced.
func peerIdentity(md metadata.MD) (protocol.Rank, int, error) {
	rank, err := intValue(md, rankKey)
	if err != nil {
		return 0, 0, err
	}
	size, err := intValue(md, sizeKey)
	if err != nil {
		return 0, 0, err
	}
	return protocol.Rank(rank), size, nil
}

func intValue(md metadata.MD, key string) (int, error) {
	vals := md.Get(key)
	if len(vals) != 1 {
		return 0, fmt.Errorf("expected one %s value, got %d", key, len(vals))
	}
	v, err := strconv.Atoi(vals[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// transportError maps a stream error onto the transport error taxonomy.
func transportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrAborted) || errors.Is(err, transport.ErrClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.Aborted {
		return fmt.Errorf("%s: %w: %s", op, transport.ErrAborted, st.Message())
	}
	return fmt.Errorf("%s: %w", op, err)
}
