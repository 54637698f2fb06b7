/*
Package coordinator runs the rank-0 side of the integration protocol.

The coordinator owns the packet sequence, the dispatch cursor and the
accumulator. It moves through four phases:

	PRIMING       one WORK to each worker while packets remain
	STEADY_STATE  each RESULT is merged and answered with the next packet,
	              sent to the rank that just replied
	DRAINING      one RESULT from every worker still holding a packet
	SHUTDOWN      one SHUTDOWN to every worker

Work is granted only when a worker returns its previous result, so faster
workers receive proportionally more packets without any load metric.

Any transport or protocol error aborts the endpoint, which fails every other
rank's pending operations.
*/
package coordinator
