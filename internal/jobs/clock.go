package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall time so timeout behavior is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces job identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random UUID job identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }
