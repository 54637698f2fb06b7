// Package config provides 12-factor configuration for integral processes.
//
// Values are layered: built-in defaults, then an optional YAML or TOML file,
// then environment variables. The CLI applies its flags last.
//
// Configuration Sections:
//   - Run: sub-steps per packet, goroutines per packet
//   - Group: rank and group size for distributed runs
//   - Transport: gRPC addresses, reply and connect timeouts
//   - Logging: log level and output format
//   - Metrics: status server address
//
// Example Usage:
//
//	cfg, err := config.LoadFrom("integral.yaml")
//	if err != nil { ... }
//	fmt.Println(cfg.Transport.CoordinatorAddr)
//
// Environment Variables:
//   - PACKET_DENSITY, KERNEL_THREADS
//   - RANK, WORLD_SIZE
//   - LISTEN_ADDR, COORDINATOR_ADDR, REPLY_TIMEOUT, CONNECT_TIMEOUT, CONNECT_ATTEMPTS
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ADDR
package config
