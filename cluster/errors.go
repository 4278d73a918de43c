package cluster

import (
	"fmt"
)

// ExitError is the failure of a child that exited before the cluster was ready.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("cluster process exited with code %d before it was ready", e.Code)
}

// WorkerDiedError is the failure of a child that reported a worker death before it was ready.
type WorkerDiedError struct {
	Action  string
	Message string
}

func (e *WorkerDiedError) Error() string {
	if e.Message == "" {
		return e.Action
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}
