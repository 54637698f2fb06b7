package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/transport"
)

const defaultDrainTimeout = 10 * time.Second

// ServerConfig configures the coordinator side of the exchange.
type ServerConfig struct {
	// Size is the group size, coordinator included.
	Size int
	// RunID is sent to every worker in the stream header.
	RunID string
	// DrainTimeout bounds the graceful stop in Close.
	DrainTimeout time.Duration
	Logger       *zap.Logger
}

// Server is the coordinator's transport.Endpoint. Every worker rank joins by
// opening one Session stream.
type Server struct {
	size         int
	runID        string
	drainTimeout time.Duration
	log          *zap.Logger
	grpc         *grpc.Server

	mu      sync.Mutex
	peers   map[protocol.Rank]*peer
	ready   int
	started bool
	joined  chan struct{}

	inbox chan protocol.Envelope

	abortOnce sync.Once
	aborted   chan struct{}
	cause     error

	closeOnce sync.Once
	closed    chan struct{}
}

type peer struct {
	rank    protocol.Rank
	session string
	stream  grpc.ServerStream
	ready   bool

	sendMu       sync.Mutex
	shutdownSent atomic.Bool
}

var _ transport.Endpoint = (*Server)(nil)

// NewServer creates the coordinator endpoint. Call Serve to accept workers.
func NewServer(cfg ServerConfig, opts ...grpc.ServerOption) (*Server, error) {
	if cfg.Size < 2 {
		return nil, fmt.Errorf("group size %d: need at least one worker", cfg.Size)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		size:         cfg.Size,
		runID:        cfg.RunID,
		drainTimeout: cfg.DrainTimeout,
		log:          cfg.Logger.With(zap.Int("rank", int(protocol.CoordinatorRank))),
		peers:        make(map[protocol.Rank]*peer, cfg.Size-1),
		joined:       make(chan struct{}),
		inbox:        make(chan protocol.Envelope, cfg.Size),
		aborted:      make(chan struct{}),
		closed:       make(chan struct{}),
	}

	serverOpts := []grpc.ServerOption{
		// Workers ping at most every 30s while a stream is open
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 20 * time.Second,
		}),
	}
	s.grpc = grpc.NewServer(append(serverOpts, opts...)...)
	s.grpc.RegisterService(&exchangeServiceDesc, s)
	return s, nil
}

// Serve accepts worker streams on lis until Close.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("Coordinator listening", zap.String("addr", lis.Addr().String()), zap.String("run", s.runID))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// AwaitWorkers blocks until every worker rank has joined.
func (s *Server) AwaitWorkers(ctx context.Context) error {
	select {
	case <-s.joined:
		return nil
	case <-s.aborted:
		return s.abortErr()
	case <-s.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d workers (%d joined): %w", s.size-1, s.Joined(), ctx.Err())
	}
}

// Joined returns the number of workers that completed the handshake.
func (s *Server) Joined() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Session handles one worker's stream for the whole run.
func (s *Server) Session(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	rank, size, err := peerIdentity(md)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if size != s.size {
		return status.Errorf(codes.FailedPrecondition, "group size is %d, worker announced %d", s.size, size)
	}
	if rank <= protocol.CoordinatorRank || int(rank) >= s.size {
		return status.Errorf(codes.InvalidArgument, "rank %d outside 1..%d", rank, s.size-1)
	}

	p := &peer{rank: rank, session: uuid.NewString(), stream: stream}
	if err := s.register(p); err != nil {
		return err
	}
	if err := stream.SendHeader(metadata.Pairs(runKey, s.runID, sessionKey, p.session)); err != nil {
		s.leave(p)
		return status.Errorf(codes.Unavailable, "handshake with rank %d: %v", rank, err)
	}
	if !s.markReady(p) {
		return status.Errorf(codes.Unavailable, "rank %d left during handshake", rank)
	}

	recvErr := make(chan error, 1)
	go func() { recvErr <- s.readLoop(p) }()

	select {
	case err := <-recvErr:
		if err == nil {
			s.log.Debug("Worker session ended", zap.Int("worker", int(rank)))
			return nil
		}
		if s.leave(p) {
			s.log.Warn("Worker left before the run started", zap.Int("worker", int(rank)), zap.Error(err))
			return status.Error(codes.Unavailable, err.Error())
		}
		s.Abort(err)
		return status.Error(codes.Aborted, err.Error())
	case <-s.aborted:
		return status.Error(codes.Aborted, s.cause.Error())
	}
}

func (s *Server) register(p *peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.aborted:
		return status.Error(codes.Aborted, s.cause.Error())
	case <-s.closed:
		return status.Error(codes.Unavailable, "coordinator closed")
	default:
	}
	if old, ok := s.peers[p.rank]; ok {
		// A stream the worker already gave up on is replaced by its retry
		if s.started || old.stream.Context().Err() == nil {
			return status.Errorf(codes.AlreadyExists, "rank %d already joined", p.rank)
		}
		s.dropLocked(old)
	}
	s.peers[p.rank] = p
	return nil
}

// markReady counts p as joined unless it was replaced or hung up during the
// handshake. The run starts once every worker is ready.
func (s *Server) markReady(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peers[p.rank] != p || p.stream.Context().Err() != nil {
		if s.peers[p.rank] == p {
			s.dropLocked(p)
		}
		return false
	}
	p.ready = true
	s.ready++
	s.log.Info("Worker joined",
		zap.Int("worker", int(p.rank)),
		zap.String("session", p.session),
		zap.Int("joined", s.ready),
		zap.Int("expected", s.size-1))
	if s.ready == s.size-1 {
		s.started = true
		close(s.joined)
	}
	return true
}

// leave forgets p if the run has not started yet, so its rank can join
// again. It reports false when p is part of a run already under way.
func (s *Server) leave(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peers[p.rank] != p {
		return true
	}
	if s.started {
		return false
	}
	s.dropLocked(p)
	return true
}

func (s *Server) dropLocked(p *peer) {
	delete(s.peers, p.rank)
	if p.ready {
		p.ready = false
		s.ready--
	}
}

func (s *Server) readLoop(p *peer) error {
	for {
		var msg protocol.Message
		if err := p.stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				if p.shutdownSent.Load() {
					return nil
				}
				return fmt.Errorf("rank %d closed its stream before shutdown", p.rank)
			}
			return fmt.Errorf("receive from rank %d: %w", p.rank, err)
		}
		select {
		case s.inbox <- protocol.Envelope{Source: p.rank, Message: msg}:
		case <-s.aborted:
			return s.abortErr()
		case <-s.closed:
			return transport.ErrClosed
		}
	}
}

// Rank returns the coordinator rank.
func (s *Server) Rank() protocol.Rank { return protocol.CoordinatorRank }

// Size returns the group size.
func (s *Server) Size() int { return s.size }

// Send writes msg to the stream of worker rank to.
func (s *Server) Send(ctx context.Context, to protocol.Rank, msg protocol.Message) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if to <= protocol.CoordinatorRank || int(to) >= s.size {
		return fmt.Errorf("%w: %d", transport.ErrUnknownRank, to)
	}

	s.mu.Lock()
	p := s.peers[to]
	s.mu.Unlock()
	if p == nil {
		return fmt.Errorf("send to rank %d: worker has not joined", to)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	// Marked before the write so the worker's half-close can never be seen
	// ahead of it.
	if msg.Tag == protocol.TagShutdown {
		p.shutdownSent.Store(true)
	}
	if err := p.stream.SendMsg(&msg); err != nil {
		return transportError(fmt.Sprintf("send to rank %d", to), err)
	}
	return nil
}

// Recv returns the next message from any worker.
func (s *Server) Recv(ctx context.Context) (protocol.Envelope, error) {
	select {
	case env := <-s.inbox:
		return env, nil
	case <-s.aborted:
		return protocol.Envelope{}, s.abortErr()
	case <-s.closed:
		return protocol.Envelope{}, transport.ErrClosed
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

// Abort ends every worker stream with codes.Aborted. The first cause wins.
func (s *Server) Abort(cause error) {
	s.abortOnce.Do(func() {
		if cause == nil {
			cause = errors.New("aborted")
		}
		s.cause = cause
		close(s.aborted)
		s.log.Error("Run aborted", zap.Error(cause))
	})
}

// Close stops the server, waiting up to the drain timeout for workers to
// hang up.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		stopped := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(s.drainTimeout):
			s.log.Warn("Graceful stop timed out, forcing", zap.Duration("timeout", s.drainTimeout))
			s.grpc.Stop()
			<-stopped
		}
	})
	return nil
}

func (s *Server) check(ctx context.Context) error {
	select {
	case <-s.aborted:
		return s.abortErr()
	case <-s.closed:
		return transport.ErrClosed
	default:
	}
	return ctx.Err()
}

func (s *Server) abortErr() error {
	return fmt.Errorf("%w: %w", transport.ErrAborted, s.cause)
}
