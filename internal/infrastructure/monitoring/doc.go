/*
Package monitoring provides run metrics and progress for the coordinator.

# Overview

Metrics implements coordinator.Observer. Every dispatch and merge updates a
set of Prometheus collectors and a Progress snapshot that the status server
serves as JSON.

# Features

- Packets dispatched and merged per worker rank
- Round-trip time per packet
- Outstanding packets and the running accumulator
- Current coordinator phase
- Status server request metrics
- Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics(runID)
	metrics.SetPackets(len(packets))

	c := coordinator.New(ep, packets, coordinator.WithObserver(metrics))

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

Each Metrics owns its registry; nothing is registered on the global default.
*/
package monitoring
