package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(Event{ID: "1", Type: TypeLoginSucceeded, Status: "success"})

	select {
	case got := <-ch:
		assert.Equal(t, TypeLoginSucceeded, got.Type)
		assert.Equal(t, "success", got.Status)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(Event{ID: "1", Type: TypeLoggedOut})
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()

	// Subscriber that never drains; its buffer fills and overflow is dropped.
	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{ID: "x", Type: TypeLoginFailed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
