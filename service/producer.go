package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexfield-ai/paygate/conversation"
	"github.com/nexfield-ai/paygate/stream"
)

// Producer generates the answer to a query. Implementations wrap whatever
// does the actual work (a model endpoint, a search backend); the returned
// sequence is lazy and finite, and a non-nil error from it marks the task
// failed.
type Producer interface {
	Produce(ctx context.Context, query string, history []conversation.Turn) (stream.Sequence, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, query string, history []conversation.Turn) (stream.Sequence, error)

func (f ProducerFunc) Produce(ctx context.Context, query string, history []conversation.Turn) (stream.Sequence, error) {
	return f(ctx, query, history)
}

// EchoProducer is the built-in fallback producer: it acknowledges the query
// and reports how much context it saw. Useful for wiring checks and tests;
// deployments configure a real producer.
type EchoProducer struct{}

func (EchoProducer) Produce(_ context.Context, query string, history []conversation.Turn) (stream.Sequence, error) {
	parts := []string{
		fmt.Sprintf("You asked: %s", strings.TrimSpace(query)),
	}
	if len(history) > 0 {
		parts = append(parts, fmt.Sprintf(" (with %d prior turns of context)", len(history)))
	}
	return stream.FromSlice(parts), nil
}
