package multiplexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneToManyFansOutInOrder(t *testing.T) {
	plexer := NewOneToMany[int](8)
	a, err := plexer.MakeReceiver("a")
	require.NoError(t, err)
	b, err := plexer.MakeReceiver("b")
	require.NoError(t, err)
	go plexer.StartPlexer()

	for i := 0; i < 3; i++ {
		plexer.GetSender() <- i
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, <-a)
		assert.Equal(t, i, <-b)
	}

	plexer.CloseSender()
	_, ok := <-a
	assert.False(t, ok, "receiver a should be closed")
	_, ok = <-b
	assert.False(t, ok, "receiver b should be closed")
}

func TestOneToManyDuplicateReceiver(t *testing.T) {
	plexer := NewOneToMany[string](1)
	_, err := plexer.MakeReceiver("ui")
	require.NoError(t, err)
	_, err = plexer.MakeReceiver("ui")
	assert.ErrorIs(t, err, ErrReceiverExists)

	// The lock must not be left held after the duplicate
	plexer.CloseReceiver("ui")
	assert.Equal(t, 0, plexer.Receivers())
}

func TestOneToManyClosedRejectsReceivers(t *testing.T) {
	plexer := NewOneToMany[string](1)
	go plexer.StartPlexer()
	plexer.CloseSender()
	plexer.CloseSender()

	_, err := plexer.MakeReceiver("late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManyToOneSendAfterClose(t *testing.T) {
	plexer := NewManyToOne(make(chan int, 2))
	require.NoError(t, plexer.Send(1))
	plexer.Close()
	plexer.Close()

	assert.ErrorIs(t, plexer.Send(2), ErrClosed)
	assert.Equal(t, 1, <-plexer.Receiver())
	_, ok := <-plexer.Receiver()
	assert.False(t, ok)
}
