// Package runner bootstraps an integration run: it validates the startup
// parameters, picks the coordinator or worker role, wires the transport,
// metrics, status server and report, and prints the outcome.
//
// Three launch modes:
//   - Local: every rank is a goroutine over in-process mailboxes
//   - Coordinator / Worker: one process per rank over gRPC
//   - ByRank: the role follows the configured rank, for launchers that start
//     the same command line on every node
package runner
