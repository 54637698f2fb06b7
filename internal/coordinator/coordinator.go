package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/integral/internal/domain/integral"
	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/transport"
)

var (
	// ErrNoWorkers is returned when the group has no rank besides the coordinator.
	ErrNoWorkers = errors.New("coordinator needs at least one worker")
	// ErrReplyTimeout is returned when a bounded wait for a result expires.
	ErrReplyTimeout = errors.New("timed out waiting for worker result")
)

// Phase is a coordinator state.
type Phase int

const (
	PhasePriming Phase = iota
	PhaseSteady
	PhaseDraining
	PhaseShutdown
	PhaseDone
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhasePriming:
		return "priming"
	case PhaseSteady:
		return "steady"
	case PhaseDraining:
		return "draining"
	case PhaseShutdown:
		return "shutdown"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Observer receives progress callbacks on the coordinator goroutine.
type Observer interface {
	PhaseChanged(phase Phase)
	Dispatched(to protocol.Rank, index int)
	Merged(from protocol.Rank, value, accumulator float64, roundTrip time.Duration)
}

type nopObserver struct{}

func (nopObserver) PhaseChanged(Phase) {}
func (nopObserver) Dispatched(protocol.Rank, int) {}
func (nopObserver) Merged(protocol.Rank, float64, float64, time.Duration) {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver registers progress callbacks.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithReplyTimeout bounds each wait for a worker result. Zero waits forever.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.replyTimeout = d
	}
}

// Result summarizes a completed run.
type Result struct {
	Value      float64               `json:"value"`
	Packets    int                   `json:"packets"`
	Dispatched int                   `json:"dispatched"`
	Received   int                   `json:"received"`
	Workers    int                   `json:"workers"`
	PerWorker  map[protocol.Rank]int `json:"per_worker"`
	Elapsed    time.Duration         `json:"elapsed_ns"`
}

type inflight struct {
	index int
	sent  time.Time
}

// Coordinator drives pull-based dispatch of packets to workers.
type Coordinator struct {
	ep           transport.Endpoint
	packets      []integral.Packet
	log          *zap.Logger
	observer     Observer
	replyTimeout time.Duration

	phase      Phase
	cursor     int
	acc        float64
	dispatched int
	received   int
	busy       map[protocol.Rank]inflight
	perWorker  map[protocol.Rank]int
}

// New creates a coordinator for packets over ep. The coordinator takes
// ownership of packets and never modifies them.
func New(ep transport.Endpoint, packets []integral.Packet, opts ...Option) *Coordinator {
	c := &Coordinator{
		ep:        ep,
		packets:   packets,
		log:       zap.NewNop(),
		observer:  nopObserver{},
		busy:      make(map[protocol.Rank]inflight),
		perWorker: make(map[protocol.Rank]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the protocol to completion and returns the accumulated value.
// On failure the endpoint is aborted before Run returns.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	if err := c.run(ctx); err != nil {
		c.log.Error("Coordinator failed",
			zap.Stringer("phase", c.phase),
			zap.Int("dispatched", c.dispatched),
			zap.Int("received", c.received),
			zap.Error(err),
		)
		c.ep.Abort(err)
		return nil, err
	}

	res := &Result{
		Value:      c.acc,
		Packets:    len(c.packets),
		Dispatched: c.dispatched,
		Received:   c.received,
		Workers:    c.ep.Size() - 1,
		PerWorker:  c.perWorker,
		Elapsed:    time.Since(started),
	}
	c.log.Info("Integration complete",
		zap.Float64("result", res.Value),
		zap.Int("packets", res.Packets),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (c *Coordinator) run(ctx context.Context) error {
	size := c.ep.Size()
	if size < 2 {
		return ErrNoWorkers
	}

	c.setPhase(PhasePriming)
	for r := 1; r < size && c.cursor < len(c.packets); r++ {
		if err := c.dispatch(ctx, protocol.Rank(r)); err != nil {
			return err
		}
	}

	c.setPhase(PhaseSteady)
	for c.cursor < len(c.packets) {
		from, err := c.collect(ctx)
		if err != nil {
			return err
		}
		if err := c.dispatch(ctx, from); err != nil {
			return err
		}
	}

	c.setPhase(PhaseDraining)
	for len(c.busy) > 0 {
		if _, err := c.collect(ctx); err != nil {
			return err
		}
	}

	c.setPhase(PhaseShutdown)
	for r := 1; r < size; r++ {
		if err := c.ep.Send(ctx, protocol.Rank(r), protocol.Shutdown()); err != nil {
			return fmt.Errorf("send shutdown to rank %d: %w", r, err)
		}
	}

	c.setPhase(PhaseDone)
	return nil
}

// dispatch sends the packet at the cursor to rank to.
func (c *Coordinator) dispatch(ctx context.Context, to protocol.Rank) error {
	idx := c.cursor
	if err := c.ep.Send(ctx, to, protocol.Work(c.packets[idx])); err != nil {
		return fmt.Errorf("send packet %d to rank %d: %w", idx, to, err)
	}

	c.cursor++
	c.dispatched++
	c.busy[to] = inflight{index: idx, sent: time.Now()}
	c.observer.Dispatched(to, idx)
	return nil
}

// collect receives one result from a busy worker and merges it.
func (c *Coordinator) collect(ctx context.Context) (protocol.Rank, error) {
	rctx := ctx
	if c.replyTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, c.replyTimeout)
		defer cancel()
	}

	env, err := c.ep.Recv(rctx)
	if err != nil {
		if c.replyTimeout > 0 && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %d workers silent for %s", ErrReplyTimeout, len(c.busy), c.replyTimeout)
		}
		return 0, fmt.Errorf("receive result: %w", err)
	}

	job, ok := c.busy[env.Source]
	if !ok {
		return 0, fmt.Errorf("%w: %s from rank %d which holds no packet", protocol.ErrUnexpectedMessage, env.Tag, env.Source)
	}
	value, err := env.Value()
	if err != nil {
		return 0, fmt.Errorf("rank %d: %w", env.Source, err)
	}

	c.acc += value
	c.received++
	c.perWorker[env.Source]++
	delete(c.busy, env.Source)

	rtt := time.Since(job.sent)
	c.log.Debug("Merged result",
		zap.Int("rank", int(env.Source)),
		zap.Int("packet", job.index),
		zap.Float64("value", value),
		zap.Duration("round_trip", rtt),
	)
	c.observer.Merged(env.Source, value, c.acc, rtt)
	return env.Source, nil
}

func (c *Coordinator) setPhase(p Phase) {
	c.phase = p
	c.log.Info("Coordinator phase",
		zap.Stringer("phase", p),
		zap.Int("cursor", c.cursor),
		zap.Int("packets", len(c.packets)),
	)
	c.observer.PhaseChanged(p)
}
