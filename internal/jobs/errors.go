package jobs

import "errors"

// ErrQueueFull is returned by Create when the registry is at capacity and no
// terminal job can be pruned to make room.
var ErrQueueFull = errors.New("job queue is full")
