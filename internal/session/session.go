// Package session holds the per-conversation state shared between the
// protocol surfaces and the conversation engine: the turn history, the
// response queue that carries spoken text out of the engine, and the three
// latching events (finished, close-voice, cancel) that coordinate turn
// completion, channel teardown and barge-in.
//
// Exactly one conversation loop runs per session at any time. History has a
// single writer (the loop); the queue has one producer and one consumer; the
// events are the only fields touched from other goroutines.
package session

import (
	"context"
	"sync"

	"github.com/voxhollow/sibyl/pkg/types"
)

// DefaultQueueCapacity bounds the response queue. Sentences are coarse
// units; a consumer that stalls for this many of them back-pressures the
// engine rather than growing without limit.
const DefaultQueueCapacity = 64

// Session is the state of one conversation.
type Session struct {
	// ID is the opaque session identifier.
	ID string

	// Responses carries response text from the engine to the consumer
	// driving playback or the chat stream.
	Responses *ResponseQueue

	// Finished latches when the engine completes one ProcessInput call.
	Finished *Event

	// CloseVoice latches when the model invokes close_voice_channel. The
	// voice server tears the channel down after the current turn.
	CloseVoice *Event

	// Cancel latches on barge-in. The engine stops forwarding prose, the
	// playback path stops between chunks. Cleared when the next utterance
	// begins.
	Cancel *Event

	mu      sync.Mutex
	history []types.Turn
}

// New creates an empty session with the given id and a response queue of
// DefaultQueueCapacity.
func New(id string) *Session {
	return &Session{
		ID:         id,
		Responses:  NewResponseQueue(DefaultQueueCapacity),
		Finished:   &Event{},
		CloseVoice: &Event{},
		Cancel:     &Event{},
	}
}

// Append adds a turn to the history. Turns are immutable once appended.
func (s *Session) Append(turn types.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
}

// History returns a copy of the turn sequence in append order.
func (s *Session) History() []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns recorded so far.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Event is a latching flag safe for concurrent use. The zero value is ready
// to use and unset.
type Event struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// Set latches the event. Waiters on Done are released. Setting an already
// set event is a no-op.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return
	}
	e.set = true
	if e.ch != nil {
		close(e.ch)
	}
}

// Clear unlatches the event. Waiters obtained before Clear stay released;
// Done calls after Clear wait for the next Set.
func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set = false
	e.ch = nil
}

// IsSet reports whether the event is latched.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Done returns a channel closed once the event is set. After a Clear, a new
// channel tracks the next Set.
func (e *Event) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch == nil {
		e.ch = make(chan struct{})
		if e.set {
			close(e.ch)
		}
	}
	return e.ch
}

// ResponseQueue is the bounded FIFO carrying response text from the engine
// to one consumer, in emission order. A turn ends with a terminal sentinel;
// text items may be empty strings, so the sentinel is typed rather than a
// magic value.
type ResponseQueue struct {
	ch chan queueItem
}

type queueItem struct {
	text string
	end  bool
}

// NewResponseQueue returns a queue holding at most capacity pending items.
// Non-positive capacities select DefaultQueueCapacity.
func NewResponseQueue(capacity int) *ResponseQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &ResponseQueue{ch: make(chan queueItem, capacity)}
}

// Put enqueues one text item, blocking while the queue is full. Returns
// ctx.Err() if the context ends first, which unblocks an engine whose
// consumer has gone away.
func (q *ResponseQueue) Put(ctx context.Context, text string) error {
	select {
	case q.ch <- queueItem{text: text}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End enqueues the terminal sentinel for the current turn.
func (q *ResponseQueue) End(ctx context.Context) error {
	select {
	case q.ch <- queueItem{end: true}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next dequeues the next item, blocking until one is available. ok is false
// when the item is the turn-terminal sentinel. Returns ctx.Err() if the
// context ends first.
func (q *ResponseQueue) Next(ctx context.Context) (text string, ok bool, err error) {
	select {
	case item := <-q.ch:
		return item.text, !item.end, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}
