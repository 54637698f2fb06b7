// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON lines for machine parsing
//   - Development: colored console output
//
// Logs go to stderr unless configured otherwise, because stdout carries the
// "Result:" and "Time:" lines of a run.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	defer logger.Sync()
//	log := logger.ForRank("worker", 3)
//	log.Debug("Packet computed", zap.Float64("lo", p.Lo))
package logging
