package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shubham-shewale/abx-client/pkg/models"
)

var (
	ErrUnrecoverableGap = errors.New("unrecoverable gap")
	ErrEmit             = errors.New("emit failed")
)

// State is a phase of a session.
type State int

const (
	Connecting State = iota
	Streaming
	GapDetection
	Recovering
	Sorting
	Emitting
	Done
	Failed
)

var stateNames = [...]string{"connecting", "streaming", "gap_detection", "recovering", "sorting", "emitting", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Recoverer fetches a single packet by sequence.
type Recoverer interface {
	FetchMissing(ctx context.Context, seq int32) (models.Packet, error)
}

// Emitter receives the final batch.
type Emitter interface {
	Write(ctx context.Context, packets []models.Packet) error
}

// UnrecoverableGap is a sequence that no recovery attempt could fill.
type UnrecoverableGap struct {
	Sequence int32
	Err      error
}

func (g UnrecoverableGap) Error() string {
	return fmt.Sprintf("sequence %d: %v", g.Sequence, g.Err)
}

func (g UnrecoverableGap) Unwrap() []error {
	return []error{ErrUnrecoverableGap, g.Err}
}

// Report describes how a session went. It is returned even when Run fails.
type Report struct {
	State         State
	Packets       []models.Packet // final output, ascending by sequence
	Streamed      int
	Missing       []int32
	Recovered     []int32
	Unrecoverable []UnrecoverableGap
	Dropped       int
	TrailingBytes int
	SpanExceeded  bool
	EmitErr       error
	Duration      time.Duration
}
