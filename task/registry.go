package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry is one task plus its own lock. All mutation of a task happens under
// entry.mu; the registry map lock is only held for lookup and insert, so
// unrelated tasks never contend.
type entry struct {
	mu       sync.Mutex
	task     Task
	watchers []chan Task
}

// Registry owns the live task set. Safe for concurrent use; operations on
// different tasks proceed independently.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*entry
	now   func() time.Time
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*entry),
		now:   time.Now,
	}
}

// Create registers a new task in working state, recording the initiating
// user message. An empty contextID gets a fresh one.
func (r *Registry) Create(contextID string, initial Message) Task {
	if contextID == "" {
		contextID = uuid.NewString()
	}
	now := r.now()
	e := &entry{
		task: Task{
			ID:        uuid.NewString(),
			ContextID: contextID,
			Status:    StatusWorking,
			Messages:  []Message{initial},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	r.mu.Lock()
	r.tasks[e.task.ID] = e
	r.mu.Unlock()

	return snapshot(e.task)
}

// Get returns a snapshot of the task. Terminal tasks remain queryable.
func (r *Registry) Get(id string) (Task, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Task{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.task), nil
}

// Advance appends incremental produced content to the task. The delta
// extends the current agent message if one is open, otherwise starts one.
// Fails with ErrTaskTerminated once the task is terminal.
func (r *Registry) Advance(id string, delta string) (Task, error) {
	return r.mutate(id, func(t *Task) error {
		last := len(t.Messages) - 1
		if last >= 0 && t.Messages[last].Role == RoleAgent {
			t.Messages[last].Parts = append(t.Messages[last].Parts, TextPart(delta))
		} else {
			t.Messages = append(t.Messages, Message{Role: RoleAgent, Parts: []Part{TextPart(delta)}})
		}
		t.Status = StatusWorking
		return nil
	})
}

// RequireInput parks the task waiting for a clarifying user turn.
func (r *Registry) RequireInput(id string, prompt Message) (Task, error) {
	return r.mutate(id, func(t *Task) error {
		t.Messages = append(t.Messages, prompt)
		t.Status = StatusInputRequired
		return nil
	})
}

// Complete sets the terminal completed state and freezes the message list.
// The final content is recorded both as the closing agent message and as a
// named artifact.
func (r *Registry) Complete(id string, final string) (Task, error) {
	return r.mutate(id, func(t *Task) error {
		t.Messages = append(t.Messages, Message{Role: RoleAgent, Parts: []Part{TextPart(final)}})
		t.Artifacts = append(t.Artifacts, Artifact{Name: "result", Parts: []Part{TextPart(final)}})
		t.Status = StatusCompleted
		return nil
	})
}

// Fail sets the terminal failed state, recording the failure reason.
func (r *Registry) Fail(id string, reason string) (Task, error) {
	return r.mutate(id, func(t *Task) error {
		t.Messages = append(t.Messages, Message{Role: RoleAgent, Parts: []Part{TextPart(reason)}})
		t.Status = StatusFailed
		return nil
	})
}

// Cancel moves a non-terminal task to canceled. Cancellation is cooperative:
// it flips recorded state only; an in-flight producer keeps running unless
// it honors cancellation itself.
func (r *Registry) Cancel(id string) (Task, error) {
	return r.mutate(id, func(t *Task) error {
		t.Status = StatusCanceled
		return nil
	})
}

// Watch returns a channel receiving a task snapshot after every state
// change, and a stop function. Slow watchers lose intermediate snapshots,
// never the ordering of the ones they do see.
func (r *Registry) Watch(id string) (<-chan Task, func(), error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Task, 16)
	e.mu.Lock()
	e.watchers = append(e.watchers, ch)
	e.mu.Unlock()

	stop := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, w := range e.watchers {
			if w == ch {
				e.watchers = append(e.watchers[:i], e.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, stop, nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.tasks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	return e, nil
}

// mutate runs fn on the task under its entry lock, rejecting terminal tasks
// and notifying watchers on success.
func (r *Registry) mutate(id string, fn func(*Task) error) (Task, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Task{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.task.Status.Terminal() {
		return Task{}, ErrTaskTerminated
	}
	if err := fn(&e.task); err != nil {
		return Task{}, err
	}
	e.task.UpdatedAt = r.now()

	snap := snapshot(e.task)
	for _, w := range e.watchers {
		select {
		case w <- snap:
		default:
		}
	}
	return snap, nil
}

// snapshot deep-copies a task so callers never alias registry state.
func snapshot(t Task) Task {
	out := t
	out.Messages = make([]Message, len(t.Messages))
	for i, m := range t.Messages {
		out.Messages[i] = Message{Role: m.Role, Parts: append([]Part(nil), m.Parts...)}
	}
	if t.Artifacts != nil {
		out.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			out.Artifacts[i] = Artifact{Name: a.Name, Parts: append([]Part(nil), a.Parts...)}
		}
	}
	return out
}
