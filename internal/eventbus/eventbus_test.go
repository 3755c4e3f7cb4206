package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func TestPublish_DispatchesByType(t *testing.T) {
	b := New()
	Use(b)
	defer Use(nil)

	var pings []int
	pongs := 0
	Subscribe(func(_ context.Context, p ping) { pings = append(pings, p.n) })
	Subscribe(func(context.Context, pong) { pongs++ })

	Publish(context.Background(), ping{n: 1})
	Publish(context.Background(), pong{})
	Publish(context.Background(), ping{n: 2})

	require.Equal(t, []int{1, 2}, pings)
	require.Equal(t, 1, pongs)
}

func TestUnsubscribe_RemovesOnlyThatHandler(t *testing.T) {
	b := New()
	var a, c int
	unsubA := SubscribeTo(b, func(context.Context, ping) { a++ })
	SubscribeTo(b, func(context.Context, ping) { c++ })

	b.emit(context.Background(), ping{})
	unsubA()
	b.emit(context.Background(), ping{})

	require.Equal(t, 1, a)
	require.Equal(t, 2, c)
}

func TestDisabledBus_IsNoop(t *testing.T) {
	Use(nil)
	called := false
	unsub := Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	unsub()
	require.False(t, called)
}
