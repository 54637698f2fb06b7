package integral

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateMatchesClosedForm(t *testing.T) {
	tests := []struct {
		name string
		lo   float64
		hi   float64
		want float64
	}{
		{name: "unit interval", lo: 0, hi: 1, want: math.Ln2},
		{name: "shifted", lo: 1, hi: 3, want: math.Log(4) - math.Log(2)},
		{name: "narrow", lo: 0.25, hi: 0.26, want: math.Log(1.26) - math.Log(1.25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := (tt.hi - tt.lo) / 10000
			assert.InDelta(t, tt.want, Evaluate(tt.lo, tt.hi, step), 1e-8)
		})
	}
}

func TestEvaluateLinearIsExact(t *testing.T) {
	k := Kernel{Integrand: func(x float64) float64 { return 2*x + 1 }, Density: 3}
	area, err := k.Integrate(context.Background(), Packet{Lo: 0, Hi: 2})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, area, 1e-12)
}

func TestEvaluatePartialLastStep(t *testing.T) {
	// 0.25 into [0, 1] gives 4 steps; 0.3 needs ceil(3.33) = 4 with the
	// last one clipped at hi.
	constant := func(float64) float64 { return 1 }
	area, err := trapezoid(context.Background(), constant, 0, 1, 0.3, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, area, 1e-12)

	assert.Equal(t, 4, stepCount(0, 1, 0.25))
	assert.Equal(t, 4, stepCount(0, 1, 0.3))
	assert.Equal(t, 10, stepCount(0, 1, 0.1))
}

func TestEvaluateNonFinite(t *testing.T) {
	assert.True(t, math.IsNaN(Evaluate(math.NaN(), 1, 0.1)))
	assert.True(t, math.IsNaN(Evaluate(0, math.Inf(1), 0.1)))
	assert.True(t, math.IsNaN(Evaluate(0, 1, 0)))
	assert.Equal(t, 0.0, Evaluate(1, 1, 0.1))
}

func TestEvaluateStepTooFine(t *testing.T) {
	assert.True(t, math.IsNaN(Evaluate(0, 1, 1e-300)))
	assert.True(t, math.IsNaN(Evaluate(-1e300, 1e300, 1e-10)))

	_, err := trapezoid(context.Background(), F, 0, 1, 1e-300, 1)
	var stepErr *StepCountError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1e-300, stepErr.Step)

	_, err = Kernel{Density: math.MaxInt}.Integrate(context.Background(), Packet{Lo: 0, Hi: 1})
	assert.ErrorAs(t, err, &stepErr)
}

func TestKernelDefaults(t *testing.T) {
	k := Kernel{Density: 10000}
	area, err := k.Integrate(context.Background(), Packet{Lo: 0, Hi: 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, area, 1e-8)
}

func TestKernelParallelMatchesSerial(t *testing.T) {
	p := Packet{Lo: 0, Hi: 1}
	serial, err := Kernel{Density: 100000}.Integrate(context.Background(), p)
	require.NoError(t, err)

	for _, par := range []int{2, 3, 8} {
		got, err := Kernel{Density: 100000, Parallelism: par}.Integrate(context.Background(), p)
		require.NoError(t, err)
		assert.InDelta(t, serial, got, 1e-12, "parallelism %d", par)

		again, err := Kernel{Density: 100000, Parallelism: par}.Integrate(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, got, again, "parallelism %d must be reproducible", par)
	}
}

func TestKernelHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Kernel{Density: 1000000}.Integrate(ctx, Packet{Lo: 0, Hi: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacketSumApproximatesLn2(t *testing.T) {
	packets, err := Partition(0, 1, 1)
	require.NoError(t, err)

	k := Kernel{Density: 10000}
	var total float64
	for _, p := range packets {
		area, err := k.Integrate(context.Background(), p)
		require.NoError(t, err)
		total += area
	}
	assert.InDelta(t, math.Ln2, total, 1e-4)
}
