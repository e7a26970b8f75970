// Package stream delivers incremental task output over a long-lived
// response channel. A finite producer sequence is consumed in order, one
// event per increment, and the stream always ends with exactly one terminal
// event, cancellation included.
package stream

import (
	"context"
	"strings"
)

// Event is one frame on a stream. Incremental frames carry Chunk; the
// terminal frame carries Done plus the record id of the stored result.
type Event struct {
	Chunk     string `json:"chunk,omitempty"`
	Done      bool   `json:"done,omitempty"`
	RecordID  string `json:"recordId,omitempty"`
	ContextID string `json:"contextId"`
}

// Sequence is a lazy, finite source of content increments. It returns
// ok=false when exhausted. A non-nil error ends the sequence; remaining
// increments, if any, are abandoned.
type Sequence func(ctx context.Context) (chunk string, ok bool, err error)

// FromSlice adapts a fixed set of chunks into a Sequence. Used by producers
// that materialize their output up front, and by tests.
func FromSlice(chunks []string) Sequence {
	i := 0
	return func(ctx context.Context) (string, bool, error) {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if i >= len(chunks) {
			return "", false, nil
		}
		chunk := chunks[i]
		i++
		return chunk, true, nil
	}
}

// Finalize builds the terminal event once the sequence has ended. It
// receives the concatenated content and the sequence error, if any; it runs
// exactly once per Pump call, including on cancellation.
type Finalize func(full string, seqErr error) Event

// Pump drains seq onto out in strict production order, then emits the
// terminal event and returns the sequence error. Events are never reordered
// or dropped while the context is live; out is buffered by the caller, and
// a slow consumer backpressures the producer through the channel send.
//
// Cancellation is cooperative: once ctx is done, no further increments are
// pulled and the producer is abandoned, but the terminal event is still
// offered so the destination is never left without a closing frame.
func Pump(ctx context.Context, seq Sequence, out chan<- Event, contextID string, finalize Finalize) error {
	var collected strings.Builder
	var seqErr error

loop:
	for {
		select {
		case <-ctx.Done():
			seqErr = ctx.Err()
			break loop
		default:
		}

		chunk, ok, err := seq(ctx)
		if err != nil {
			seqErr = err
			break
		}
		if !ok {
			break
		}
		collected.WriteString(chunk)

		select {
		case out <- Event{Chunk: chunk, ContextID: contextID}:
		case <-ctx.Done():
			seqErr = ctx.Err()
			break loop
		}
	}

	terminal := finalize(collected.String(), seqErr)
	terminal.Done = true
	terminal.ContextID = contextID
	select {
	case out <- terminal:
	case <-ctx.Done():
		// Destination gone; the terminal frame is offered without
		// blocking so Pump itself always returns.
		select {
		case out <- terminal:
		default:
		}
	}
	return seqErr
}
