package budget

import (
	"errors"
	"fmt"
)

const (
	KindSteps = "steps"
	KindTime  = "time"
)

// ErrExceeded is returned when a run used up its step or time allowance.
type ErrExceeded struct {
	Kind  string
	Usage string
	Limit string
}

func (e ErrExceeded) Error() string {
	if e.Limit != "" {
		return fmt.Sprintf("budget %s exceeded: usage=%s limit=%s", e.Kind, e.Usage, e.Limit)
	}
	return fmt.Sprintf("budget %s exceeded: usage=%s", e.Kind, e.Usage)
}

// ErrCancelled is reported once the caller went away.
var ErrCancelled = errors.New("run cancelled")
