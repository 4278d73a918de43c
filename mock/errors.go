package mock

import (
	"fmt"
)

// NotReadyError reports an application member used before the application was ready.
type NotReadyError struct {
	Op       string
	Property string
}

func (e *NotReadyError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("can't %s before ready", e.Op)
	}
	return fmt.Sprintf("can't %s %s before ready", e.Op, e.Property)
}
