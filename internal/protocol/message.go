// Package protocol defines the messages exchanged between the coordinator and
// its workers, and their binary frame encoding.
package protocol

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/integral/internal/domain/integral"
)

// Rank identifies a participant in the group. The coordinator is rank 0.
type Rank int

// CoordinatorRank is the rank of the single coordinator.
const CoordinatorRank Rank = 0

// Tag discriminates message kinds on the wire.
type Tag int32

const (
	TagWork     Tag = 0
	TagResult   Tag = 1
	TagShutdown Tag = 2
)

// String returns the string representation of the tag
func (t Tag) String() string {
	switch t {
	case TagWork:
		return "work"
	case TagResult:
		return "result"
	case TagShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("tag(%d)", int32(t))
	}
}

// payloadLen is the number of float64 values each tag carries.
func (t Tag) payloadLen() (int, bool) {
	switch t {
	case TagWork:
		return 2, true
	case TagResult:
		return 1, true
	case TagShutdown:
		return 0, true
	default:
		return 0, false
	}
}

var (
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrMalformedFrame    = errors.New("malformed frame")
)

// Message is a tagged payload of float64 values.
type Message struct {
	Tag     Tag
	Payload []float64
}

// Work builds a WORK message carrying p.
func Work(p integral.Packet) Message {
	return Message{Tag: TagWork, Payload: []float64{p.Lo, p.Hi}}
}

// Result builds a RESULT message carrying one partial area.
func Result(v float64) Message {
	return Message{Tag: TagResult, Payload: []float64{v}}
}

// Shutdown builds the empty SHUTDOWN message.
func Shutdown() Message {
	return Message{Tag: TagShutdown}
}

// Validate checks the payload length against the tag.
func (m Message) Validate() error {
	want, ok := m.Tag.payloadLen()
	if !ok {
		return fmt.Errorf("%w: unknown %s", ErrMalformedFrame, m.Tag)
	}
	if len(m.Payload) != want {
		return fmt.Errorf("%w: %s carries %d values, want %d", ErrMalformedFrame, m.Tag, len(m.Payload), want)
	}
	return nil
}

// Packet returns the packet carried by a WORK message.
func (m Message) Packet() (integral.Packet, error) {
	if m.Tag != TagWork {
		return integral.Packet{}, fmt.Errorf("%w: %s is not work", ErrUnexpectedMessage, m.Tag)
	}
	if err := m.Validate(); err != nil {
		return integral.Packet{}, err
	}
	return integral.Packet{Lo: m.Payload[0], Hi: m.Payload[1]}, nil
}

// Value returns the partial area carried by a RESULT message.
func (m Message) Value() (float64, error) {
	if m.Tag != TagResult {
		return 0, fmt.Errorf("%w: %s is not a result", ErrUnexpectedMessage, m.Tag)
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}
	return m.Payload[0], nil
}

// Envelope is a received message with its sender.
type Envelope struct {
	Source Rank
	Message
}
