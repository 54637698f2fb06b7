package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/integral/internal/coordinator"
	"github.com/GriffinCanCode/integral/internal/domain/integral"
	"github.com/GriffinCanCode/integral/internal/grpc"
	"github.com/GriffinCanCode/integral/internal/infrastructure/config"
	"github.com/GriffinCanCode/integral/internal/infrastructure/logging"
	"github.com/GriffinCanCode/integral/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/integral/internal/infrastructure/server"
	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/shared/id"
	"github.com/GriffinCanCode/integral/internal/transport/local"
	"github.com/GriffinCanCode/integral/internal/worker"
)

const statusShutdownTimeout = 5 * time.Second

// Runner launches runs with one configuration.
type Runner struct {
	cfg        *config.Config
	logger     *logging.Logger
	out        io.Writer
	reportPath string
	runID      id.RunID
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutput sets where the result lines are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithReport writes a JSON report to path after a successful run.
func WithReport(path string) Option {
	return func(r *Runner) { r.reportPath = path }
}

// New creates a Runner.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
		runID:  id.NewRunID(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns the ID this runner's coordinator announces.
func (r *Runner) RunID() id.RunID {
	return r.runID
}

// Local runs the whole group in this process, one goroutine per rank.
func (r *Runner) Local(ctx context.Context, p Params) (*coordinator.Result, error) {
	size := r.cfg.Group.Size
	if size < 2 {
		return nil, startupError(nil, "group size %d: need at least one worker", size)
	}

	started := time.Now()
	packets, err := integral.Partition(p.Start, p.End, p.Multiplier)
	if err != nil {
		return nil, err
	}

	group, err := local.NewGroup(size)
	if err != nil {
		return nil, startupError(err, "create local group")
	}

	metrics := r.newMetrics(len(packets))
	stopStatus, err := r.startStatus(metrics)
	if err != nil {
		return nil, err
	}
	defer stopStatus()

	g, gctx := errgroup.WithContext(ctx)
	for rank := 1; rank < size; rank++ {
		ep, err := group.Endpoint(protocol.Rank(rank))
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			_, err := worker.New(ep, r.kernel(), worker.WithLogger(r.logger.Named("worker"))).Run(gctx)
			return err
		})
	}

	ep, err := group.Endpoint(protocol.CoordinatorRank)
	if err != nil {
		return nil, err
	}
	res, coordErr := coordinator.New(ep, packets, r.coordinatorOptions(metrics)...).Run(gctx)
	workerErr := g.Wait()
	if coordErr != nil {
		return nil, coordErr
	}
	if workerErr != nil {
		return nil, workerErr
	}

	return res, r.finish("local", p, res, time.Since(started))
}

// Coordinator serves the run over gRPC as rank 0 and blocks until every
// worker has been shut down.
func (r *Runner) Coordinator(ctx context.Context, p Params) (*coordinator.Result, error) {
	size := r.cfg.Group.Size
	if size < 2 {
		return nil, startupError(nil, "group size %d: need at least one worker", size)
	}
	log := r.logger.ForRank("coordinator", int(protocol.CoordinatorRank))

	srv, err := grpc.NewServer(grpc.ServerConfig{
		Size:   size,
		RunID:  r.runID.String(),
		Logger: r.logger.Named("transport"),
	})
	if err != nil {
		return nil, startupError(err, "create coordinator endpoint")
	}
	lis, err := net.Listen("tcp", r.cfg.Transport.ListenAddr)
	if err != nil {
		return nil, startupError(err, "listen on %s", r.cfg.Transport.ListenAddr)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(lis) }()
	defer srv.Close()

	packets, err := integral.Partition(p.Start, p.End, p.Multiplier)
	if err != nil {
		srv.Abort(err)
		return nil, err
	}

	metrics := r.newMetrics(len(packets))
	stopStatus, err := r.startStatus(metrics)
	if err != nil {
		srv.Abort(err)
		return nil, err
	}
	defer stopStatus()

	log.Info("Waiting for workers", zap.Int("expected", size-1), zap.Int("packets", len(packets)))
	if err := srv.AwaitWorkers(ctx); err != nil {
		srv.Abort(err)
		return nil, err
	}

	started := time.Now()
	res, err := coordinator.New(srv, packets, r.coordinatorOptions(metrics)...).Run(ctx)
	if err != nil {
		return nil, err
	}
	if err := srv.Close(); err != nil {
		return nil, err
	}
	if err := <-serveErr; err != nil {
		log.Warn("Coordinator server stopped with error", zap.Error(err))
	}

	return res, r.finish("coordinator", p, res, time.Since(started))
}

// Worker joins the coordinator over gRPC with the configured rank and
// computes packets until told to stop.
func (r *Runner) Worker(ctx context.Context) (*worker.Stats, error) {
	rank, size := r.cfg.Group.Rank, r.cfg.Group.Size
	if size < 2 {
		return nil, startupError(nil, "group size %d: need at least one worker", size)
	}
	if rank < 1 || rank >= size {
		return nil, startupError(nil, "worker rank %d outside 1..%d", rank, size-1)
	}

	cli, err := grpc.Dial(ctx, grpc.ClientConfig{
		Address:         r.cfg.Transport.CoordinatorAddr,
		Rank:            protocol.Rank(rank),
		Size:            size,
		ConnectTimeout:  r.cfg.Transport.ConnectTimeout.Std(),
		ConnectAttempts: r.cfg.Transport.ConnectAttempts,
		Logger:          r.logger.Named("transport"),
	})
	if err != nil {
		return nil, err
	}

	stats, runErr := worker.New(cli, r.kernel(), worker.WithLogger(r.logger.Named("worker"))).Run(ctx)
	closeErr := cli.Close()
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return stats, nil
}

// ByRank runs the coordinator on rank 0 and a worker on every other rank.
func (r *Runner) ByRank(ctx context.Context, p Params) error {
	rank, size := r.cfg.Group.Rank, r.cfg.Group.Size
	if rank < 0 || rank >= size {
		return startupError(nil, "rank %d outside 0..%d", rank, size-1)
	}
	if rank == int(protocol.CoordinatorRank) {
		_, err := r.Coordinator(ctx, p)
		return err
	}
	_, err := r.Worker(ctx)
	return err
}

func (r *Runner) kernel() integral.Kernel {
	return integral.Kernel{
		Density:     r.cfg.Run.Density,
		Parallelism: r.cfg.Run.KernelThreads,
	}
}

func (r *Runner) coordinatorOptions(metrics *monitoring.Metrics) []coordinator.Option {
	return []coordinator.Option{
		coordinator.WithLogger(r.logger.ForRank("coordinator", int(protocol.CoordinatorRank))),
		coordinator.WithObserver(metrics),
		coordinator.WithReplyTimeout(r.cfg.Transport.ReplyTimeout.Std()),
	}
}

func (r *Runner) newMetrics(packets int) *monitoring.Metrics {
	m := monitoring.NewMetrics(r.runID.String())
	m.SetPackets(packets)
	return m
}

// startStatus serves metrics when a status address is configured. The
// returned func stops the server.
func (r *Runner) startStatus(metrics *monitoring.Metrics) (func(), error) {
	addr := r.cfg.Metrics.Addr
	if addr == "" {
		return func() {}, nil
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, startupError(err, "listen for status on %s", addr)
	}
	srv := server.New(metrics, r.logger.Named("status"))
	go func() {
		if err := srv.Serve(lis); err != nil {
			r.logger.Warn("Status server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("Status server shutdown failed", zap.Error(err))
		}
	}, nil
}

// finish prints the outcome and writes the report.
func (r *Runner) finish(mode string, p Params, res *coordinator.Result, elapsed time.Duration) error {
	if _, err := fmt.Fprintf(r.out, "Result: %f\nTime: %.2fs\n", res.Value, elapsed.Seconds()); err != nil {
		return fmt.Errorf("print result: %w", err)
	}
	if r.reportPath == "" {
		return nil
	}

	return WriteReport(r.reportPath, Report{
		RunID:     r.runID.String(),
		Mode:      mode,
		Params:    p,
		Density:   r.cfg.Run.Density,
		Threads:   r.cfg.Run.KernelThreads,
		Result:    res,
		WallClock: elapsed.Seconds(),
	})
}
