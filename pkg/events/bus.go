package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Type string

const (
	TypePostPublished      Type = "post.published"
	TypePostFailed         Type = "post.failed"
	TypeCredentialExpiring Type = "credential.expiring"
	TypeCredentialDead     Type = "credential.dead"
)

// Envelope is the event shape delivered to subscribers.
type Envelope struct {
	EventID    string    `json:"event_id"`
	EventType  Type      `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type PostPublished struct {
	PostID         string    `json:"post_id"`
	TaskID         string    `json:"task_id"`
	AccountID      string    `json:"account_id"`
	ExternalPostID string    `json:"external_post_id"`
	Permalink      string    `json:"permalink,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}

type PostFailed struct {
	PostID    string `json:"post_id"`
	TaskID    string `json:"task_id"`
	AccountID string `json:"account_id"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

type CredentialExpiring struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CredentialDead struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// Bus is the in-process channel notification collaborators subscribe to.
// Publishing never blocks the engine: a subscriber that falls behind has
// events dropped, with a warning, rather than stalling publication work.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Envelope
	buffer int
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer}
}

// Subscribe registers a new subscriber channel. The channel is closed when the
// bus is closed.
func (b *Bus) Subscribe() <-chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Envelope, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish fans the event out to every subscriber without blocking.
func (b *Bus) Publish(eventType Type, payload any) {
	env := Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
			logrus.Warnf("[EVENTS] subscriber buffer full, dropping %s event %s", env.EventType, env.EventID)
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
