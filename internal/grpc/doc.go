// Package grpc carries the integration protocol over gRPC.
//
// The coordinator runs a Server; every worker holds one bidirectional
// Session stream to it through a Client. Each stream message is one protocol
// frame (see protocol.MarshalFrame), selected with the "integral" content
// subtype, so no generated stubs are involved.
//
// Stream lifecycle:
//   - the worker opens Session with its rank and the group size in metadata
//   - the coordinator answers with header metadata carrying the run ID
//   - WORK, RESULT and SHUTDOWN frames flow until the worker sees SHUTDOWN
//   - the worker half-closes, the coordinator's handler returns OK
//
// A stream that ends any other way aborts the run: the coordinator ends all
// remaining streams with codes.Aborted.
//
// Example Usage:
//
//	srv := grpc.NewServer(grpc.ServerConfig{Size: 4, RunID: runID, Logger: log})
//	go srv.Serve(lis)
//	if err := srv.AwaitWorkers(ctx); err != nil { ... }
//
//	cli, err := grpc.Dial(ctx, grpc.ClientConfig{Address: "coord:7070", Rank: 2, Size: 4})
package grpc
