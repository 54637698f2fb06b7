package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/integral/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/transport"
)

const (
	defaultConnectTimeout  = 5 * time.Second
	defaultConnectAttempts = 30
	defaultRetryInterval   = time.Second
	closeTimeout           = 5 * time.Second
)

// ClientConfig configures a worker's connection to the coordinator.
type ClientConfig struct {
	Address string
	Rank    protocol.Rank
	Size    int
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
	// ConnectAttempts is the number of consecutive failed attempts after
	// which Dial gives up.
	ConnectAttempts int
	// RetryInterval is the minimum spacing between attempts.
	RetryInterval time.Duration
	Logger        *zap.Logger
	DialOptions   []grpc.DialOption
}

// Client is a worker's transport.Endpoint. Its only peer is the coordinator.
type Client struct {
	rank    protocol.Rank
	size    int
	address string
	log     *zap.Logger

	conn    *grpc.ClientConn
	stream  grpc.ClientStream
	cancel  context.CancelFunc
	runID   string
	session string

	sendMu sync.Mutex

	abortOnce sync.Once
	aborted   chan struct{}
	cause     error

	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Endpoint = (*Client)(nil)

// Dial connects to the coordinator and completes the session handshake,
// retrying while the coordinator is unavailable.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Size < 2 {
		return nil, fmt.Errorf("group size %d: need at least one worker", cfg.Size)
	}
	if cfg.Rank <= protocol.CoordinatorRank || int(cfg.Rank) >= cfg.Size {
		return nil, fmt.Errorf("worker rank %d outside 1..%d", cfg.Rank, cfg.Size-1)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = defaultConnectAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Matches the coordinator's enforcement policy, which rejects pings
		// more often than every 30s
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	conn, err := grpc.NewClient(cfg.Address, append(opts, cfg.DialOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", cfg.Address, err)
	}

	c := &Client{
		rank:    cfg.Rank,
		size:    cfg.Size,
		address: cfg.Address,
		log:     cfg.Logger.With(zap.Int("rank", int(cfg.Rank))),
		conn:    conn,
		aborted: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	if err := c.connect(ctx, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context, cfg ClientConfig) error {
	limiter := rate.NewLimiter(rate.Every(cfg.RetryInterval), 1)

	// After a timed-out attempt the coordinator may still hold that stream
	// for a moment and refuse the retry as a duplicate.
	var abandoned bool
	failed := func(err error) bool {
		return retryable(err) || (abandoned && status.Code(err) == codes.AlreadyExists)
	}
	breaker := resilience.New("connect "+cfg.Address, resilience.Settings{
		Window: 24 * time.Hour,
		Trip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.ConnectAttempts)
		},
		IsFailure: failed,
		OnStateChange: func(name string, from, to resilience.State) {
			c.log.Warn("Connect breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("connect to %s: %w", c.address, err)
		}
		_, err := resilience.Do(breaker, func() (struct{}, error) {
			return struct{}{}, c.open(ctx, cfg.ConnectTimeout)
		})
		if err == nil {
			c.log.Info("Joined coordinator",
				zap.String("addr", c.address),
				zap.String("run", c.runID),
				zap.String("session", c.session),
				zap.Int("attempts", attempt))
			return nil
		}
		if !failed(err) {
			return fmt.Errorf("connect to %s: %w", c.address, err)
		}
		if status.Code(err) == codes.DeadlineExceeded {
			abandoned = true
		}
		if breaker.State() == resilience.StateOpen {
			return fmt.Errorf("connect to %s: giving up after %d attempts: %w", c.address, attempt, err)
		}
		c.log.Warn("Coordinator not reachable, retrying",
			zap.String("addr", c.address),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
}

// open starts the Session stream and waits for the coordinator's header.
func (c *Client) open(ctx context.Context, timeout time.Duration) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx,
		rankKey, strconv.Itoa(int(c.rank)),
		sizeKey, strconv.Itoa(c.size))

	attemptCtx, attemptCancel := context.WithTimeout(ctx, timeout)
	defer attemptCancel()
	stop := context.AfterFunc(attemptCtx, cancel)

	stream, err := c.conn.NewStream(streamCtx, &exchangeServiceDesc.Streams[0], sessionMethod)
	if err == nil {
		err = c.handshake(stream)
	}
	if !stop() {
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return status.Errorf(codes.DeadlineExceeded, "connect attempt timed out after %s", timeout)
	}
	if err != nil {
		cancel()
		return err
	}

	c.stream = stream
	c.cancel = cancel
	return nil
}

func (c *Client) handshake(stream grpc.ClientStream) error {
	header, err := stream.Header()
	if err != nil {
		return err
	}
	runs := header.Get(runKey)
	if len(runs) == 0 {
		// Rejected without headers; the status carries the reason.
		var msg protocol.Message
		if err := stream.RecvMsg(&msg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return status.Error(codes.Internal, "coordinator sent no run header")
	}
	c.runID = runs[0]
	if sessions := header.Get(sessionKey); len(sessions) > 0 {
		c.session = sessions[0]
	}
	return nil
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// RunID returns the run ID the coordinator announced.
func (c *Client) RunID() string { return c.runID }

// Session returns the session ID the coordinator assigned to this stream.
func (c *Client) Session() string { return c.session }

// Rank returns this worker's rank.
func (c *Client) Rank() protocol.Rank { return c.rank }

// Size returns the group size.
func (c *Client) Size() int { return c.size }

// Send writes msg to the coordinator. Workers have no other peer.
func (c *Client) Send(ctx context.Context, to protocol.Rank, msg protocol.Message) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if to != protocol.CoordinatorRank {
		return fmt.Errorf("%w: worker can only reach rank %d, got %d", transport.ErrUnknownRank, protocol.CoordinatorRank, to)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(&msg); err != nil {
		if errors.Is(err, io.EOF) {
			// The stream ended; its status is only visible on receive.
			return fmt.Errorf("send: %w", transport.ErrClosed)
		}
		return transportError("send", err)
	}
	return nil
}

// Recv returns the next message from the coordinator. Cancelling ctx tears
// down the stream.
func (c *Client) Recv(ctx context.Context) (protocol.Envelope, error) {
	if err := c.check(ctx); err != nil {
		return protocol.Envelope{}, err
	}
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()

	var msg protocol.Message
	if err := c.stream.RecvMsg(&msg); err != nil {
		if ctx.Err() != nil {
			return protocol.Envelope{}, ctx.Err()
		}
		if err := c.check(context.Background()); err != nil {
			return protocol.Envelope{}, err
		}
		if errors.Is(err, io.EOF) {
			return protocol.Envelope{}, fmt.Errorf("coordinator ended the session: %w", transport.ErrClosed)
		}
		return protocol.Envelope{}, transportError("receive", err)
	}
	return protocol.Envelope{Source: protocol.CoordinatorRank, Message: msg}, nil
}

// Abort tears down the stream. The coordinator sees the reset and aborts the
// rest of the group.
func (c *Client) Abort(cause error) {
	c.abortOnce.Do(func() {
		if cause == nil {
			cause = errors.New("aborted")
		}
		c.cause = cause
		close(c.aborted)
		c.cancel()
		c.log.Error("Run aborted", zap.Error(cause))
	})
}

// Close half-closes the stream, waits for the coordinator to end the session
// and releases the connection.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.sendMu.Lock()
		_ = c.stream.CloseSend()
		c.sendMu.Unlock()

		drained := make(chan error, 1)
		go func() {
			for {
				var msg protocol.Message
				if err := c.stream.RecvMsg(&msg); err != nil {
					drained <- err
					return
				}
			}
		}()

		select {
		case err := <-drained:
			if !errors.Is(err, io.EOF) && !c.isAborted() {
				closeErr = transportError("close", err)
			}
		case <-time.After(closeTimeout):
			c.log.Warn("Coordinator did not end the session in time", zap.Duration("timeout", closeTimeout))
		}

		c.cancel()
		if err := c.conn.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("close connection: %w", err)
		}
	})
	return closeErr
}

func (c *Client) check(ctx context.Context) error {
	select {
	case <-c.aborted:
		return c.abortErr()
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	return ctx.Err()
}

func (c *Client) isAborted() bool {
	select {
	case <-c.aborted:
		return true
	default:
		return false
	}
}

func (c *Client) abortErr() error {
	return fmt.Errorf("%w: %w", transport.ErrAborted, c.cause)
}
