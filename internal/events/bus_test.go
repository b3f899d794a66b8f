package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	got := make(chan Event, 2)
	bus.Subscribe(EventPlayerLogin, "a", func(ctx context.Context, e Event) error {
		got <- e
		return nil
	})
	bus.Subscribe(EventPlayerLogin, "b", func(ctx context.Context, e Event) error {
		got <- e
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventPlayerLogin, Source: "test", Payload: PlayerLoginPayload{PlayerName: "Steve"}})

	for i := 0; i < 2; i++ {
		select {
		case e := <-got:
			assert.Equal(t, "Steve", e.Payload.(PlayerLoginPayload).PlayerName)
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	boom := errors.New("boom")
	bus.Subscribe(EventHeartbeat, "fails", func(ctx context.Context, e Event) error { return boom })

	err := bus.EmitSync(context.Background(), Event{Type: EventHeartbeat})
	assert.ErrorIs(t, err, boom)
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	bus.Subscribe(EventShutdown, "panics", func(ctx context.Context, e Event) error { panic("bad") })
	bus.Subscribe(EventShutdown, "counts", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventShutdown}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	noop := func(ctx context.Context, e Event) error { return nil }
	bus.Subscribe(EventClientConnected, "one", noop)
	bus.Subscribe(EventClientConnected, "two", noop)
	require.Equal(t, 2, bus.HandlerCount(EventClientConnected))

	bus.Unsubscribe(EventClientConnected, "one")
	assert.Equal(t, 1, bus.HandlerCount(EventClientConnected))
}

func TestStoppedBusDropsEvents(t *testing.T) {
	bus := NewEventBus()

	var calls atomic.Int32
	bus.Subscribe(EventHeartbeat, "counts", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})
	bus.Stop()
	bus.Stop()

	bus.Emit(context.Background(), Event{Type: EventHeartbeat})
	require.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventHeartbeat}))
	assert.Zero(t, calls.Load())
}
