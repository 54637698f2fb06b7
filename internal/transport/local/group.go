// Package local implements transport.Endpoint with in-process mailboxes.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/transport"
)

// Group is a set of ranks sharing one address space.
type Group struct {
	boxes []*mailbox

	mu    sync.Mutex
	cause error
	done  chan struct{}
}

// NewGroup creates a group of size ranks.
func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size must be positive, got %d", size)
	}
	g := &Group{
		boxes: make([]*mailbox, size),
		done:  make(chan struct{}),
	}
	for i := range g.boxes {
		g.boxes[i] = newMailbox()
	}
	return g, nil
}

// Size returns the number of ranks.
func (g *Group) Size() int {
	return len(g.boxes)
}

// Endpoint returns the endpoint of rank r.
func (g *Group) Endpoint(r protocol.Rank) (*Endpoint, error) {
	if int(r) < 0 || int(r) >= len(g.boxes) {
		return nil, fmt.Errorf("%w: %d", transport.ErrUnknownRank, r)
	}
	return &Endpoint{group: g, rank: r, closed: make(chan struct{})}, nil
}

// Pending returns the number of undelivered messages queued for rank r.
func (g *Group) Pending(r protocol.Rank) int {
	if int(r) < 0 || int(r) >= len(g.boxes) {
		return 0
	}
	return g.boxes[r].len()
}

// Abort fails every rank's pending and future operations. Only the first
// cause is kept.
func (g *Group) Abort(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cause != nil {
		return
	}
	if cause == nil {
		cause = transport.ErrAborted
	}
	g.cause = cause
	close(g.done)
}

// Err returns the abort cause, if any.
func (g *Group) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", transport.ErrAborted, g.cause)
}

// Endpoint is one rank of a Group.
type Endpoint struct {
	group *Group
	rank  protocol.Rank

	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Endpoint = (*Endpoint)(nil)

func (e *Endpoint) Rank() protocol.Rank { return e.rank }

func (e *Endpoint) Size() int { return e.group.Size() }

// Send enqueues msg in the receiver's mailbox. It never blocks on the receiver.
func (e *Endpoint) Send(ctx context.Context, to protocol.Rank, msg protocol.Message) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if int(to) < 0 || int(to) >= len(e.group.boxes) {
		return fmt.Errorf("%w: %d", transport.ErrUnknownRank, to)
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	payload := append([]float64(nil), msg.Payload...)
	e.group.boxes[to].push(protocol.Envelope{
		Source:  e.rank,
		Message: protocol.Message{Tag: msg.Tag, Payload: payload},
	})
	return nil
}

// Recv pops the oldest message in this rank's mailbox.
func (e *Endpoint) Recv(ctx context.Context) (protocol.Envelope, error) {
	box := e.group.boxes[e.rank]
	for {
		if err := e.check(ctx); err != nil {
			return protocol.Envelope{}, err
		}

		env, ok, wait := box.pop()
		if ok {
			return env, nil
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return protocol.Envelope{}, ctx.Err()
		case <-e.group.done:
			return protocol.Envelope{}, e.group.Err()
		case <-e.closed:
			return protocol.Envelope{}, transport.ErrClosed
		}
	}
}

// Abort aborts the whole group.
func (e *Endpoint) Abort(cause error) {
	e.group.Abort(cause)
}

// Close marks this endpoint closed. Other ranks are unaffected.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

func (e *Endpoint) check(ctx context.Context) error {
	if err := e.group.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.closed:
		return transport.ErrClosed
	default:
		return nil
	}
}
