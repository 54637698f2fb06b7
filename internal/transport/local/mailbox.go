package local

import (
	"sync"

	"github.com/GriffinCanCode/integral/internal/protocol"
)

// mailbox is an unbounded FIFO queue with a broadcast wake-up channel.
type mailbox struct {
	mu     sync.Mutex
	queue  []protocol.Envelope
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{})}
}

func (m *mailbox) push(env protocol.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, env)
	close(m.signal)
	m.signal = make(chan struct{})
}

// pop returns the head of the queue, or a channel closed on the next push.
func (m *mailbox) pop() (protocol.Envelope, bool, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return protocol.Envelope{}, false, m.signal
	}
	env := m.queue[0]
	m.queue[0] = protocol.Envelope{}
	m.queue = m.queue[1:]
	return env, true, nil
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
