// Command integral computes the integral of 1/(1+x) over [start, end] by
// handing packets of the interval to a pool of workers on demand.
//
// Usage:
//
//	integral local <start> <end> <multiplier> --size 8
//	integral coordinator <start> <end> <multiplier> --size 4 --listen :7070
//	integral worker --rank 1 --size 4 --coordinator host:7070
//	integral run <start> <end> <multiplier>        (role from RANK)
//	integral status --addr host:9090
//
// The coordinator prints "Result: %f" and "Time: %.2fs". The exit code is 1
// on any error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
