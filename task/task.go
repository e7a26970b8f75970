// Package task tracks units of work through their lifecycle, independent of
// payment. Tasks move forward only: submitted/working to exactly one of
// completed, failed or canceled, and terminal tasks stay queryable.
package task

import (
	"errors"
	"time"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input-required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Sentinel errors of the task protocol.
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskTerminated = errors.New("task already terminated")
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Part is one piece of message content. Only text parts are produced today;
// Kind keeps the wire shape open for other content types.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Kind: "text", Text: text}
}

// Message is one turn recorded on a task.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == "text" {
			out += p.Text
		}
	}
	return out
}

// Artifact is a named output attached to a completed task.
type Artifact struct {
	Name  string `json:"name"`
	Parts []Part `json:"parts"`
}

// Task is a snapshot of one unit of work. Message order is strictly arrival
// order.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    Status     `json:"status"`
	Messages  []Message  `json:"messages"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
