package agent

import (
	"context"
	"iter"
)

// Processor answers chat turns. It is implemented by Loop.
type Processor interface {
	// Stream runs a turn and yields its events in order. The sequence must be
	// drained by a single consumer.
	Stream(ctx context.Context, turn Turn) iter.Seq2[Event, error]

	// Chat runs a turn and returns only the final text.
	Chat(ctx context.Context, turn Turn) (string, error)
}

// Ensure Loop implements Processor.
var _ Processor = (*Loop)(nil)
