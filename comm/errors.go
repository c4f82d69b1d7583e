package comm

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrCommFailure reports that the transport could not complete a requested
// operation. Operations return it wrapped with context via fmt.Errorf's %w.
var ErrCommFailure = status.Error(codes.Unavailable, "comm: transport failure")

// ErrPoisoned reports that an operation was attempted on a container a
// prior CommFailure left in an unusable state.
var ErrPoisoned = status.Error(codes.FailedPrecondition, "comm: operation attempted on a poisoned container")
