package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/GriffinCanCode/integral/internal/domain/integral"
)

func TestFramePreservesBits(t *testing.T) {
	values := []float64{
		0, math.Copysign(0, -1), math.SmallestNonzeroFloat64, math.MaxFloat64,
		math.Inf(-1), 1.0 / 3.0, math.Float64frombits(0x7ff8000000000001),
	}

	for _, v := range values {
		frame, err := MarshalFrame(Result(v))
		require.NoError(t, err)

		got, err := UnmarshalFrame(frame)
		require.NoError(t, err)

		val, err := got.Value()
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(v), math.Float64bits(val))
	}
}

func TestFrameKinds(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		size int
	}{
		{name: "work", msg: Work(integral.Packet{Lo: 0.25, Hi: 0.5}), size: 2 + 2*9},
		{name: "result", msg: Result(0.125), size: 2 + 9},
		{name: "shutdown", msg: Shutdown(), size: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := MarshalFrame(tt.msg)
			require.NoError(t, err)
			assert.Len(t, frame, tt.size)

			got, err := UnmarshalFrame(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Tag, got.Tag)
			assert.Equal(t, len(tt.msg.Payload), len(got.Payload))
		})
	}
}

func TestWorkPacketRoundTrip(t *testing.T) {
	want := integral.Packet{Lo: -1.5, Hi: 2.75}
	frame, err := MarshalFrame(Work(want))
	require.NoError(t, err)

	msg, err := UnmarshalFrame(frame)
	require.NoError(t, err)

	got, err := msg.Packet()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMarshalRejectsInvalidMessages(t *testing.T) {
	_, err := MarshalFrame(Message{Tag: TagWork, Payload: []float64{1}})
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = MarshalFrame(Message{Tag: Tag(9)})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestUnmarshalRejectsMalformedFrames(t *testing.T) {
	tagOnly := func(tag uint64) []byte {
		b := protowire.AppendTag(nil, fieldTag, protowire.VarintType)
		return protowire.AppendVarint(b, tag)
	}
	withValue := func(b []byte) []byte {
		b = protowire.AppendTag(b, fieldPayload, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, math.Float64bits(1))
	}

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "empty", frame: nil},
		{name: "truncated", frame: []byte{0x08}},
		{name: "unknown tag", frame: tagOnly(7)},
		{name: "work missing payload", frame: withValue(tagOnly(0))},
		{name: "shutdown with payload", frame: withValue(tagOnly(2))},
		{name: "too many values", frame: withValue(withValue(withValue(tagOnly(0))))},
		{name: "unknown field", frame: protowire.AppendVarint(protowire.AppendTag(tagOnly(1), 5, protowire.VarintType), 1)},
		{name: "payload without tag", frame: withValue(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalFrame(tt.frame)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestAccessorsRejectWrongTag(t *testing.T) {
	_, err := Shutdown().Packet()
	assert.ErrorIs(t, err, ErrUnexpectedMessage)

	_, err = Work(integral.Packet{Lo: 0, Hi: 1}).Value()
	assert.ErrorIs(t, err, ErrUnexpectedMessage)

	assert.Equal(t, "work", TagWork.String())
	assert.Equal(t, "tag(7)", Tag(7).String())
}
