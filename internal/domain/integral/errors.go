package integral

import "fmt"

// InvalidRangeError reports an interval that cannot be partitioned.
type InvalidRangeError struct {
	Start float64
	End   float64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid integration range [%g, %g]: start must be finite and less than end", e.Start, e.End)
}

// InvalidMultiplierError reports a non-positive packet multiplier.
type InvalidMultiplierError struct {
	Multiplier int
}

func (e *InvalidMultiplierError) Error() string {
	return fmt.Sprintf("invalid packet multiplier %d: must be at least 1", e.Multiplier)
}

// AllocationError reports a packet sequence too large to materialize.
type AllocationError struct {
	Requested int64
	Limit     int
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("cannot allocate %d packets (limit %d)", e.Requested, e.Limit)
}

// StepCountError reports a sub-step grid too fine to index.
type StepCountError struct {
	Lo   float64
	Hi   float64
	Step float64
}

func (e *StepCountError) Error() string {
	return fmt.Sprintf("step %g over [%g, %g] needs more than %d sub-steps", e.Step, e.Lo, e.Hi, int64(maxSteps))
}
