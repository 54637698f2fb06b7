/*
Package transport defines the point-to-point messaging contract the
coordinator and worker loops run on.

An Endpoint is one rank's view of the group. Implementations must deliver
messages between any ordered pair of ranks in send order. Recv is a wildcard
receive: it returns the next message addressed to this rank from any sender.

Two implementations exist:

  - local: in-process mailboxes, one goroutine per rank
  - grpc: the coordinator serves a bidirectional stream per worker

Failure model: any error returned by Send or Recv is fatal for the run. The
rank that observes it calls Abort, which makes every other rank's pending and
future operations fail as well, so no peer is left blocked.
*/
package transport

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/integral/internal/protocol"
)

var (
	// ErrAborted is returned by operations after the group was aborted.
	ErrAborted = errors.New("transport aborted")
	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("transport closed")
	// ErrUnknownRank is returned when sending to a rank outside the group.
	ErrUnknownRank = errors.New("unknown rank")
)

// Endpoint is one rank's connection to the group.
type Endpoint interface {
	// Rank returns this endpoint's rank.
	Rank() protocol.Rank
	// Size returns the number of ranks in the group, coordinator included.
	Size() int
	// Send delivers msg to rank to. It blocks until the transport accepted it.
	Send(ctx context.Context, to protocol.Rank, msg protocol.Message) error
	// Recv blocks until a message for this rank arrives from any sender.
	Recv(ctx context.Context) (protocol.Envelope, error)
	// Abort fails the whole group with cause.
	Abort(cause error)
	// Close releases the endpoint after a clean run.
	Close() error
}
