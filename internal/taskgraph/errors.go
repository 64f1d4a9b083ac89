package taskgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrDuplicateTask = errors.New("duplicate task")
	ErrCycle         = errors.New("cycle detected")
	ErrSkipped       = errors.New("skipped after prerequisite failure")
)

// GraphError is a registry or graph validation failure. Kind is one of the
// Err* sentinels.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func unknownTask(name string) error {
	return &GraphError{Kind: ErrUnknownTask, Msg: fmt.Sprintf("%q", name)}
}

func cycleError(path []string) error {
	return &GraphError{Kind: ErrCycle, Msg: strings.Join(path, " -> ")}
}

// TaskError is the failure of a task body.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
