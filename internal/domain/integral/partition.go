package integral

import "math"

const (
	// BasePacketCount is the number of packets produced per unit of multiplier.
	BasePacketCount = 100

	// MaxPacketCount bounds the packet sequence a coordinator will allocate.
	MaxPacketCount = 1 << 26
)

// Packet is one contiguous sub-interval of the integration domain.
type Packet struct {
	Lo float64
	Hi float64
}

// Width returns Hi - Lo.
func (p Packet) Width() float64 {
	return p.Hi - p.Lo
}

// PacketCount returns the number of packets Partition produces for multiplier.
// Counts past the int64 range saturate at math.MaxInt64.
func PacketCount(multiplier int) int64 {
	if int64(multiplier) > math.MaxInt64/BasePacketCount {
		return math.MaxInt64
	}
	return int64(BasePacketCount) * int64(multiplier)
}

// Partition splits [start, end] into BasePacketCount*multiplier equal packets.
// The whole sequence is allocated up front since the coordinator dispatches by
// index and compares its cursor against the total.
func Partition(start, end float64, multiplier int) ([]Packet, error) {
	if !isFinite(start) || !isFinite(end) || !(start < end) {
		return nil, &InvalidRangeError{Start: start, End: end}
	}
	if multiplier < 1 {
		return nil, &InvalidMultiplierError{Multiplier: multiplier}
	}

	count := PacketCount(multiplier)
	if count > MaxPacketCount {
		return nil, &AllocationError{Requested: count, Limit: MaxPacketCount}
	}

	n := int(count)
	step := (end - start) / float64(n)
	packets := make([]Packet, n)

	lo := start
	for k := 0; k < n; k++ {
		hi := start + float64(k+1)*step
		if k == n-1 {
			hi = end
		}
		packets[k] = Packet{Lo: lo, Hi: hi}
		lo = hi
	}

	return packets, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
