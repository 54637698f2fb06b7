package integral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionCoversInterval(t *testing.T) {
	tests := []struct {
		name       string
		start      float64
		end        float64
		multiplier int
	}{
		{name: "unit interval", start: 0, end: 1, multiplier: 1},
		{name: "negative start", start: -3.5, end: 2.25, multiplier: 3},
		{name: "tiny interval", start: 1e-9, end: 2e-9, multiplier: 2},
		{name: "wide interval", start: -1e6, end: 1e6, multiplier: 10},
		{name: "fractional bounds", start: 0.1, end: 0.7, multiplier: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packets, err := Partition(tt.start, tt.end, tt.multiplier)
			require.NoError(t, err)
			require.Len(t, packets, BasePacketCount*tt.multiplier)

			assert.Equal(t, tt.start, packets[0].Lo)
			assert.Equal(t, tt.end, packets[len(packets)-1].Hi)

			width := (tt.end - tt.start) / float64(len(packets))
			for i, p := range packets {
				assert.Less(t, p.Lo, p.Hi, "packet %d is empty", i)
				assert.InDelta(t, width, p.Width(), math.Abs(width)*1e-6+1e-300, "packet %d width", i)
				if i > 0 {
					assert.Equal(t, packets[i-1].Hi, p.Lo, "gap or overlap before packet %d", i)
				}
			}
		})
	}
}

func TestPartitionIsDeterministic(t *testing.T) {
	a, err := Partition(-2, 5, 4)
	require.NoError(t, err)
	b, err := Partition(-2, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPartitionRejectsInvalidRange(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		end   float64
	}{
		{name: "zero length", start: 1, end: 1},
		{name: "reversed", start: 2, end: 1},
		{name: "nan start", start: math.NaN(), end: 1},
		{name: "infinite end", start: 0, end: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packets, err := Partition(tt.start, tt.end, 1)
			assert.Nil(t, packets)

			var rangeErr *InvalidRangeError
			require.ErrorAs(t, err, &rangeErr)
			assert.Contains(t, err.Error(), "invalid integration range")
		})
	}
}

func TestPartitionRejectsInvalidMultiplier(t *testing.T) {
	for _, m := range []int{0, -1, -100} {
		_, err := Partition(0, 1, m)
		var multErr *InvalidMultiplierError
		require.ErrorAs(t, err, &multErr)
		assert.Equal(t, m, multErr.Multiplier)
	}
}

func TestPartitionRejectsOversizedSequence(t *testing.T) {
	for _, m := range []int{
		MaxPacketCount/BasePacketCount + 1,
		math.MaxInt64 / 50,
		184467440737095516,
		math.MaxInt,
	} {
		_, err := Partition(0, 1, m)

		var allocErr *AllocationError
		require.ErrorAs(t, err, &allocErr, "multiplier %d", m)
		assert.Greater(t, allocErr.Requested, int64(MaxPacketCount), "multiplier %d", m)
	}
}

func TestPacketCountSaturates(t *testing.T) {
	assert.Equal(t, int64(300), PacketCount(3))
	assert.Equal(t, int64(math.MaxInt64), PacketCount(math.MaxInt64/50))
	assert.Equal(t, int64(math.MaxInt64), PacketCount(math.MaxInt))
}
