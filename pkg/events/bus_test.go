package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(TypePostPublished, PostPublished{PostID: "p1", ExternalPostID: "ig-1"})

	for _, ch := range []<-chan Envelope{a, b} {
		select {
		case env := <-ch:
			assert.Equal(t, TypePostPublished, env.EventType)
			assert.NotEmpty(t, env.EventID)
			payload, ok := env.Payload.(PostPublished)
			require.True(t, ok)
			assert.Equal(t, "p1", payload.PostID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	_ = bus.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TypePostFailed, PostFailed{PostID: "p1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBus_CloseClosesSubscriberChannels(t *testing.T) {
	bus := NewBus(4)
	ch := bus.Subscribe()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after close must be a no-op, not a panic.
	bus.Publish(TypeCredentialExpiring, CredentialExpiring{AccountID: "a"})
}
