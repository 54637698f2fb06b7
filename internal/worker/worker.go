// Package worker runs the non-coordinator side of the integration protocol.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/integral/internal/domain/integral"
	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/transport"
)

// State is a worker loop state.
type State int

const (
	StateWaiting State = iota
	StateComputing
	StateReplying
	StateDone
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateComputing:
		return "computing"
	case StateReplying:
		return "replying"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Stats summarizes one worker's run.
type Stats struct {
	Packets int
	Busy    time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// Worker answers WORK messages with RESULT messages until told to stop.
// It never initiates communication.
type Worker struct {
	ep     transport.Endpoint
	kernel integral.Kernel
	log    *zap.Logger
	state  State
}

// New creates a worker over ep.
func New(ep transport.Endpoint, k integral.Kernel, opts ...Option) *Worker {
	w := &Worker{
		ep:     ep,
		kernel: k,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(zap.Int("rank", int(ep.Rank())))
	return w
}

// Run processes packets until SHUTDOWN arrives. On failure the endpoint is
// aborted before Run returns.
func (w *Worker) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := w.run(ctx, stats); err != nil {
		w.log.Error("Worker failed",
			zap.Stringer("state", w.state),
			zap.Int("packets", stats.Packets),
			zap.Error(err),
		)
		w.ep.Abort(err)
		return stats, err
	}

	w.log.Info("Worker finished",
		zap.Int("packets", stats.Packets),
		zap.Duration("busy", stats.Busy),
	)
	return stats, nil
}

func (w *Worker) run(ctx context.Context, stats *Stats) error {
	for {
		w.setState(StateWaiting)
		env, err := w.ep.Recv(ctx)
		if err != nil {
			return fmt.Errorf("wait for work: %w", err)
		}
		if env.Source != protocol.CoordinatorRank {
			return fmt.Errorf("%w: %s from rank %d", protocol.ErrUnexpectedMessage, env.Tag, env.Source)
		}

		switch env.Tag {
		case protocol.TagShutdown:
			w.setState(StateDone)
			return nil

		case protocol.TagWork:
			p, err := env.Packet()
			if err != nil {
				return err
			}

			w.setState(StateComputing)
			started := time.Now()
			area, err := w.kernel.Integrate(ctx, p)
			if err != nil {
				return fmt.Errorf("integrate [%g, %g]: %w", p.Lo, p.Hi, err)
			}
			stats.Busy += time.Since(started)

			w.setState(StateReplying)
			if err := w.ep.Send(ctx, protocol.CoordinatorRank, protocol.Result(area)); err != nil {
				return fmt.Errorf("send result: %w", err)
			}
			stats.Packets++
			w.log.Debug("Packet done",
				zap.Float64("lo", p.Lo),
				zap.Float64("hi", p.Hi),
				zap.Float64("area", area),
			)

		default:
			return fmt.Errorf("%w: %s from coordinator", protocol.ErrUnexpectedMessage, env.Tag)
		}
	}
}

func (w *Worker) setState(s State) {
	w.state = s
}
