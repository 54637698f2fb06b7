package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/integral/internal/domain/integral"
	"github.com/GriffinCanCode/integral/internal/protocol"
	"github.com/GriffinCanCode/integral/internal/transport"
)

func endpoints(t *testing.T, size int) (*Group, []*Endpoint) {
	t.Helper()
	g, err := NewGroup(size)
	require.NoError(t, err)

	eps := make([]*Endpoint, size)
	for i := range eps {
		eps[i], err = g.Endpoint(protocol.Rank(i))
		require.NoError(t, err)
	}
	return g, eps
}

func TestNewGroupRejectsEmpty(t *testing.T) {
	_, err := NewGroup(0)
	assert.Error(t, err)

	g, err := NewGroup(2)
	require.NoError(t, err)
	_, err = g.Endpoint(2)
	assert.ErrorIs(t, err, transport.ErrUnknownRank)
}

func TestSendRecvPreservesOrderPerSender(t *testing.T) {
	ctx := context.Background()
	g, eps := endpoints(t, 3)

	for i := 0; i < 50; i++ {
		require.NoError(t, eps[1].Send(ctx, 0, protocol.Result(float64(i))))
		require.NoError(t, eps[2].Send(ctx, 0, protocol.Result(float64(-i))))
	}
	assert.Equal(t, 100, g.Pending(0))

	next := map[protocol.Rank]float64{1: 0, 2: 0}
	for i := 0; i < 100; i++ {
		env, err := eps[0].Recv(ctx)
		require.NoError(t, err)

		v, err := env.Value()
		require.NoError(t, err)
		switch env.Source {
		case 1:
			assert.Equal(t, next[1], v)
			next[1]++
		case 2:
			assert.Equal(t, next[2], v)
			next[2]--
		default:
			t.Fatalf("unexpected source %d", env.Source)
		}
	}
	assert.Zero(t, g.Pending(0))
}

func TestSendCopiesPayload(t *testing.T) {
	ctx := context.Background()
	_, eps := endpoints(t, 2)

	msg := protocol.Work(integral.Packet{Lo: 1, Hi: 2})
	require.NoError(t, eps[0].Send(ctx, 1, msg))
	msg.Payload[0] = 99

	env, err := eps[1].Recv(ctx)
	require.NoError(t, err)
	p, err := env.Packet()
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Lo)
	assert.Equal(t, protocol.Rank(0), env.Source)
}

func TestSendValidates(t *testing.T) {
	ctx := context.Background()
	_, eps := endpoints(t, 2)

	assert.ErrorIs(t, eps[0].Send(ctx, 5, protocol.Shutdown()), transport.ErrUnknownRank)
	assert.ErrorIs(t, eps[0].Send(ctx, 1, protocol.Message{Tag: protocol.TagResult}), protocol.ErrMalformedFrame)
}

func TestRecvBlocksUntilSend(t *testing.T) {
	ctx := context.Background()
	_, eps := endpoints(t, 2)

	got := make(chan protocol.Envelope, 1)
	go func() {
		env, err := eps[1].Recv(ctx)
		if err == nil {
			got <- env
		}
	}()

	select {
	case <-got:
		t.Fatal("recv returned before any send")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, eps[0].Send(ctx, 1, protocol.Shutdown()))
	select {
	case env := <-got:
		assert.Equal(t, protocol.TagShutdown, env.Tag)
	case <-time.After(time.Second):
		t.Fatal("recv did not wake up")
	}
}

func TestRecvHonorsContext(t *testing.T) {
	_, eps := endpoints(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := eps[1].Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAbortWakesEveryRank(t *testing.T) {
	ctx := context.Background()
	g, eps := endpoints(t, 4)
	cause := errors.New("worker exploded")

	var wg sync.WaitGroup
	errs := make([]error, len(eps))
	for i, ep := range eps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ep.Recv(ctx)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	eps[2].Abort(cause)
	g.Abort(errors.New("second cause is ignored"))
	wg.Wait()

	for i, err := range errs {
		assert.ErrorIs(t, err, transport.ErrAborted, "rank %d", i)
		assert.ErrorIs(t, err, cause, "rank %d", i)
	}
	assert.ErrorIs(t, eps[0].Send(ctx, 1, protocol.Shutdown()), transport.ErrAborted)
}

func TestCloseFailsOnlyThatEndpoint(t *testing.T) {
	ctx := context.Background()
	_, eps := endpoints(t, 2)

	require.NoError(t, eps[1].Close())
	require.NoError(t, eps[1].Close())

	_, err := eps[1].Recv(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.NoError(t, eps[0].Send(ctx, 1, protocol.Shutdown()))
}
