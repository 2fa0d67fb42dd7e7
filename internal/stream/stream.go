package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published on the assignment stream.
const (
	EventAssignmentCreated  = "assignment.created"
	EventAssignmentUnlocked = "assignment.unlocked"
)

// Event describes an assignment lifecycle change for live dashboards.
// Only display fields are carried; passwords and hashes never enter the
// stream.
type Event struct {
	Type          string    `json:"type"`
	AssignmentID  string    `json:"assignment_id"`
	ProjectName   string    `json:"project_name"`
	StaffUsername string    `json:"staff_username"`
	Timestamp     time.Time `json:"timestamp"`
}

// Stream fans events out to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to all subscribers.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when a subscriber is slow to avoid blocking.
		}
	}
}
