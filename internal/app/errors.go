package app

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned by Cancel when the id is unknown, which includes
// jobs that already reached a terminal state.
var ErrJobNotFound = errors.New("job not found")

// StatusError is a terminal non-redirect HTTP status seen by the direct
// transfer pipeline.
type StatusError int

func (err StatusError) Error() string {
	return fmt.Sprintf("download failed with status %d", int(err))
}
