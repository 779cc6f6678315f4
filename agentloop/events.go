package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart         EventKind = "run_start"
	EventRunEnd           EventKind = "run_end"
	EventAssistantMessage EventKind = "assistant_message"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallEnd      EventKind = "tool_call_end"
	EventTurnLimit        EventKind = "turn_limit"
	EventLoopDetected     EventKind = "loop_detected"
	EventError            EventKind = "error"
)

// RunEvent is a typed event emitted by a framework while it drives a run.
type RunEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	RunGroup  string                 `json:"run_group,omitempty"`
	Framework string                 `json:"framework"`
	Model     string                 `json:"model"`
	PromptID  string                 `json:"prompt_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventSink receives run events. Emit must not block the loop.
type EventSink interface {
	Emit(RunEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(RunEvent)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev RunEvent) { f(ev) }

type nopSink struct{}

func (nopSink) Emit(RunEvent) {}

// EventEmitter delivers run events to the host application via a channel.
type EventEmitter struct {
	ch     chan RunEvent
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan RunEvent, bufferSize)}
}

// Emit sends an event to the channel. If the emitter is closed or the
// channel is full, the event is dropped.
func (e *EventEmitter) Emit(ev RunEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan RunEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
