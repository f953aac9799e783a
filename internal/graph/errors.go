package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrRouterFailure means the router produced no usable decision.
	ErrRouterFailure = errors.New("router returned no usable decision")

	// ErrRetryExhausted means every SQL correction attempt failed.
	ErrRetryExhausted = errors.New("query retries exhausted")

	// ErrNameUnresolved means the best fuzzy candidate scored below the floor.
	ErrNameUnresolved = errors.New("name could not be resolved")

	// ErrCallTimeout means an external call ran past its deadline.
	ErrCallTimeout = errors.New("external call timed out")
)

// NodeError records which node a turn failed in.
type NodeError struct {
	Node Node
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("error executing node %q: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
