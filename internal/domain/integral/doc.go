/*
Package integral holds the numerical side of the distributed integration:
the fixed integrand, the trapezoidal kernel every worker runs, and the
partitioner that cuts the global interval into dispatchable packets.

# Packets

	packets, err := integral.Partition(0, 1, 4) // 400 packets
	if err != nil {
		return err
	}

Packets are contiguous: packets[i].Hi == packets[i+1].Lo, the first Lo is the
interval start and the last Hi is pinned to the interval end.

# Kernel

	k := integral.Kernel{Density: integral.DefaultDensity}
	area, err := k.Integrate(ctx, packets[0])

Density is the number of trapezoid sub-steps per packet. It must match on
every worker of a run for the result to be reproducible.
*/
package integral
