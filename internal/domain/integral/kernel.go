package integral

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

// DefaultDensity is the number of trapezoid sub-steps per packet.
const DefaultDensity = 40 * 1024000

// blockSteps caps how many sub-steps are materialized at once.
const blockSteps = 4096

// maxSteps bounds the sub-step count of one interval.
const maxSteps = 1 << 62

// Integrand is a scalar function of one variable.
type Integrand func(x float64) float64

// F is the fixed integrand, 1/(1+x). Its integral over [0, 1] is ln 2.
func F(x float64) float64 {
	return 1.0 / (1.0 + x)
}

// Evaluate applies the trapezoidal rule to F over [lo, hi] with the given
// step. Non-finite inputs, and steps too fine to count, yield NaN.
func Evaluate(lo, hi, step float64) float64 {
	area, err := trapezoid(context.Background(), F, lo, hi, step, 1)
	if err != nil {
		return math.NaN()
	}
	return area
}

// Kernel integrates packets at a fixed sub-step density.
type Kernel struct {
	// Integrand defaults to F.
	Integrand Integrand
	// Density is the sub-step count per packet; DefaultDensity when zero.
	Density int
	// Parallelism splits a packet across goroutines when greater than one.
	// The chunk partials are summed in order, so a fixed Parallelism gives
	// a reproducible result.
	Parallelism int
}

// Integrate returns the trapezoidal estimate of the integrand over p.
func (k Kernel) Integrate(ctx context.Context, p Packet) (float64, error) {
	f := k.Integrand
	if f == nil {
		f = F
	}
	density := k.Density
	if density <= 0 {
		density = DefaultDensity
	}
	step := p.Width() / float64(density)
	return trapezoid(ctx, f, p.Lo, p.Hi, step, k.Parallelism)
}

func trapezoid(ctx context.Context, f Integrand, lo, hi, step float64, parallelism int) (float64, error) {
	if !isFinite(lo) || !isFinite(hi) || !isFinite(step) || step <= 0 {
		return math.NaN(), nil
	}
	if q := (hi - lo) / step; math.IsInf(q, 0) || q >= maxSteps {
		return math.NaN(), &StepCountError{Lo: lo, Hi: hi, Step: step}
	}
	n := stepCount(lo, hi, step)
	if n <= 0 {
		return 0, nil
	}

	if parallelism <= 1 || n < 2*blockSteps {
		return sumSteps(ctx, f, lo, hi, step, n, 0, n)
	}
	if parallelism > n/blockSteps {
		parallelism = n / blockSteps
	}

	partials := make([]float64, parallelism)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < parallelism; i++ {
		from := n * i / parallelism
		to := n * (i + 1) / parallelism
		g.Go(func() error {
			s, err := sumSteps(gctx, f, lo, hi, step, n, from, to)
			partials[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return floats.Sum(partials), nil
}

// stepCount is ceil((hi-lo)/step), except that a quotient within rounding
// noise of an integer is taken as that integer.
func stepCount(lo, hi, step float64) int {
	q := (hi - lo) / step
	r := math.Round(q)
	if math.Abs(q-r) <= 1e-9*math.Max(1, r) {
		return int(r)
	}
	return int(math.Ceil(q))
}

// sumSteps integrates sub-steps [from, to) of an n-step grid in blocks.
func sumSteps(ctx context.Context, f Integrand, lo, hi, step float64, n, from, to int) (float64, error) {
	size := min(blockSteps, to-from) + 1
	xs := make([]float64, 0, size)
	fs := make([]float64, 0, size)

	var sum float64
	for a := from; a < to; {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b := min(a+blockSteps, to)

		xs, fs = xs[:0], fs[:0]
		for k := a; k <= b; k++ {
			x := abscissa(lo, hi, step, n, k)
			xs = append(xs, x)
			fs = append(fs, f(x))
		}
		sum += integrate.Trapezoidal(xs, fs)
		a = b
	}
	return sum, nil
}

func abscissa(lo, hi, step float64, n, k int) float64 {
	if k >= n {
		return hi
	}
	return math.Min(lo+float64(k)*step, hi)
}
