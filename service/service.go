// Package service orchestrates the query flow behind the payment gate:
// task lifecycle, conversation context, the work producer and the stored
// records, exposed over HTTP and a structured task protocol.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexfield-ai/paygate/conversation"
	"github.com/nexfield-ai/paygate/stream"
	"github.com/nexfield-ai/paygate/task"
)

// Error kinds surfaced by the service. Handlers map these to transport
// status codes; callers never see a raw producer error.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUpstreamProducer = errors.New("upstream producer failure")
)

// AskResult is the outcome of a completed, non-streaming submission.
type AskResult struct {
	Response  string    `json:"response"`
	ContextID string    `json:"contextId"`
	RecordID  string    `json:"recordId"`
	TaskID    string    `json:"taskId"`
	Timestamp time.Time `json:"timestamp"`
}

// Service wires the producer, task registry, conversation store and record
// store into the submission flows. Safe for concurrent use.
type Service struct {
	producer Producer
	records  RecordStore
	tasks    *task.Registry
	contexts *conversation.Store
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithProducer sets the work producer. Defaults to EchoProducer.
func WithProducer(p Producer) Option {
	return func(s *Service) { s.producer = p }
}

// WithRecordStore sets the record store. Defaults to in-memory.
func WithRecordStore(r RecordStore) Option {
	return func(s *Service) { s.records = r }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(opts ...Option) *Service {
	s := &Service{
		producer: EchoProducer{},
		records:  NewMemoryRecordStore(),
		tasks:    task.NewRegistry(),
		contexts: conversation.NewStore(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tasks exposes the task registry for the task protocol handlers.
func (s *Service) Tasks() *task.Registry {
	return s.tasks
}

// Contexts exposes the conversation store.
func (s *Service) Contexts() *conversation.Store {
	return s.contexts
}

// Records exposes the record store.
func (s *Service) Records() RecordStore {
	return s.records
}

// Ask runs one submission to completion: creates a task, produces the
// answer with the conversation history as context, records the exchange and
// returns the result. The payer, when known, is recorded on the exchange.
func (s *Service) Ask(ctx context.Context, content, contextID, payer string) (*AskResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}

	t := s.tasks.Create(contextID, task.Message{
		Role:  task.RoleUser,
		Parts: []task.Part{task.TextPart(content)},
	})
	history := s.contexts.Get(contextID)

	seq, err := s.producer.Produce(ctx, content, history)
	if err != nil {
		return nil, s.failTask(t.ID, contextID, err)
	}

	var full strings.Builder
	for {
		chunk, ok, err := seq(ctx)
		if err != nil {
			return nil, s.failTask(t.ID, contextID, err)
		}
		if !ok {
			break
		}
		full.WriteString(chunk)
		if _, err := s.tasks.Advance(t.ID, chunk); err != nil {
			// Canceled mid-production: stop consuming, report terminated.
			return nil, err
		}
	}

	result, err := s.finish(t.ID, contextID, content, full.String(), payer)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AskStream runs one submission as an event stream. The returned channel
// carries one event per produced chunk and always ends with a terminal
// event; it is closed once the flow finishes. The context id (generated if
// absent) is returned immediately so the transport can report it.
func (s *Service) AskStream(ctx context.Context, content, contextID, payer string) (<-chan stream.Event, string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, "", fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}

	t := s.tasks.Create(contextID, task.Message{
		Role:  task.RoleUser,
		Parts: []task.Part{task.TextPart(content)},
	})
	history := s.contexts.Get(contextID)

	seq, err := s.producer.Produce(ctx, content, history)
	if err != nil {
		return nil, "", s.failTask(t.ID, contextID, err)
	}

	// Record each chunk on the task as it streams out.
	advancing := func(ctx context.Context) (string, bool, error) {
		chunk, ok, err := seq(ctx)
		if err != nil || !ok {
			return chunk, ok, err
		}
		if _, err := s.tasks.Advance(t.ID, chunk); err != nil {
			return "", false, err
		}
		return chunk, true, nil
	}

	out := make(chan stream.Event, 32)
	go func() {
		defer close(out)
		stream.Pump(ctx, advancing, out, contextID, func(full string, seqErr error) stream.Event {
			if seqErr != nil {
				s.failTask(t.ID, contextID, seqErr)
				return stream.Event{}
			}
			result, err := s.finish(t.ID, contextID, content, full, payer)
			if err != nil {
				s.logger.Error("failed to finish streamed task",
					"task", t.ID, "context", contextID, "error", err)
				return stream.Event{}
			}
			return stream.Event{RecordID: result.RecordID}
		})
	}()
	return out, contextID, nil
}

// finish records the completed exchange: saves the record, appends both
// turns to the conversation atomically, and completes the task.
func (s *Service) finish(taskID, contextID, query, response, payer string) (*AskResult, error) {
	now := s.now()
	record := Record{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Query:     query,
		Response:  response,
		Payer:     payer,
		CreatedAt: now,
	}
	if err := s.records.Save(record); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	// One atomic append for the question/answer pair keeps concurrent
	// submissions on the same context from interleaving inside a turn pair.
	s.contexts.Append(contextID,
		conversation.Turn{Role: conversation.RoleUser, Content: query, At: now},
		conversation.Turn{Role: conversation.RoleAgent, Content: response, At: now},
	)

	if _, err := s.tasks.Complete(taskID, response); err != nil {
		return nil, err
	}

	s.logger.Info("submission completed",
		"task", taskID, "context", contextID, "record", record.ID)

	return &AskResult{
		Response:  response,
		ContextID: contextID,
		RecordID:  record.ID,
		TaskID:    taskID,
		Timestamp: now,
	}, nil
}

func (s *Service) failTask(taskID, contextID string, cause error) error {
	s.logger.Error("producer failed", "task", taskID, "context", contextID, "error", cause)
	if _, err := s.tasks.Fail(taskID, cause.Error()); err != nil && !errors.Is(err, task.ErrTaskTerminated) {
		s.logger.Error("failed to mark task failed", "task", taskID, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamProducer, cause)
}
