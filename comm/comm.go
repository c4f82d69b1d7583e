// Package comm defines the abstract message-passing transport the
// distributed partition, tree construction, and balancing algorithms are
// written against, and an in-process implementation of it for single-binary
// use and for tests. No on-the-wire format is dictated here: a production
// deployment supplies its own Comm, typically backed by a real MPI binding
// or a gRPC-based transport in the style of the scheduler/communicator
// packages this module started from.
package comm

import "context"

// Op selects the combining operator of an AllReduce.
type Op int

const (
	SUM Op = iota
	MIN
	MAX
	// ALLMAX is MAX, named separately because the source system
	// distinguished a reduce-to-root "MAX" from a reduce-to-all "ALLMAX";
	// this transport only ever reduces to all ranks, so the two coincide.
	ALLMAX
)

// Comm is the collaborator every distributed operation in this module talks
// to: point-to-point send/receive and four collectives (all-reduce,
// all-to-all-v, all-gather, barrier). Every method blocks until the
// operation completes, and returns an error wrapping ErrCommFailure if the
// transport could not complete the operation, including when ctx is
// already done on entry.
type Comm interface {
	// Rank returns this process's index among Size() ranks.
	Rank() int
	// Size returns the number of ranks participating in this Comm.
	Size() int

	// Send blocks until data has been handed off to rank dest.
	Send(ctx context.Context, dest int, data []byte) error
	// Recv blocks until a message from rank src is available and returns it.
	Recv(ctx context.Context, src int) ([]byte, error)

	// Barrier blocks until every rank has called Barrier.
	Barrier(ctx context.Context) error

	// AllReduceInt64 combines local element-wise across every rank with op
	// and returns the combined vector to every rank.
	AllReduceInt64(ctx context.Context, local []int64, op Op) ([]int64, error)

	// AllGatherInt64 returns a slice of length Size() with every rank's
	// local value, in rank order.
	AllGatherInt64(ctx context.Context, local int64) ([]int64, error)

	// AllToAllV exchanges data: send must have exactly Size() entries,
	// send[j] being the payload this rank addresses to rank j. The result
	// has Size() entries, result[k] being the payload rank k addressed to
	// this rank.
	AllToAllV(ctx context.Context, send [][]byte) ([][]byte, error)
}
