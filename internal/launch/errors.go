package launch

import (
	"errors"
	"fmt"
)

// ErrSpawn is matched by every SpawnError. A spawn failure leaves no safe
// partial state and the shell is expected to exit.
var ErrSpawn = errors.New("cannot spawn pipeline")

// SpawnError reports a pipe or fork failure while launching a job.
type SpawnError struct {
	// Op is "pipe" or "fork".
	Op    string
	Stage int
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s for stage %d: %v", e.Op, e.Stage, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}
