/*
Package resilience provides a circuit breaker for repeated operations that
may keep failing, such as a worker's attempts to reach its coordinator.

# Usage

	breaker := resilience.New("coordinator-connect", resilience.Settings{
		Cooldown: 30 * time.Second,
		Trip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		IsFailure: func(err error) bool {
			return status.Code(err) == codes.Unavailable
		},
	})

	stream, err := resilience.Do(breaker, func() (grpc.ClientStream, error) {
		return open(ctx)
	})

Errors rejected by IsFailure are returned unchanged and do not move the
breaker, so a permanent rejection is not retried as if it were transient.

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                                             |
	                                         [failure]
	                                             v
	                                            Open
*/
package resilience
