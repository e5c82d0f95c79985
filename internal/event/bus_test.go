package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"thinkora-client/internal/model"
)

func TestBusListenersReceiveInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var seen []model.State
	unlisten := bus.Listen(func(e Event) {
		seen = append(seen, e.Snapshot.State)
	})

	bus.Publish(New(TypeSessionChanged, model.Snapshot{State: model.StateAuthenticating}))
	bus.Publish(New(TypeSessionChanged, model.Snapshot{State: model.StateAuthenticated}))
	unlisten()
	unlisten()
	bus.Publish(New(TypeSessionChanged, model.Snapshot{State: model.StateAnonymous}))

	require.Equal(t, []model.State{model.StateAuthenticating, model.StateAuthenticated}, seen)
}

func TestBusSubscribeDropsWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	bus.bufferSize = 1
	events, unsubscribe := bus.Subscribe()

	first := New(TypeSessionChanged, model.Snapshot{State: model.StateRefreshing})
	bus.Publish(first)
	bus.Publish(New(TypeSessionExpired, model.Snapshot{State: model.StateExpired}))

	got := <-events
	require.Equal(t, first.ID, got.ID)
	require.NotEmpty(t, got.Timestamp)

	unsubscribe()
	_, open := <-events
	require.False(t, open)
}
