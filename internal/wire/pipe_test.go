package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeOrdering(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	require.NoError(t, a.SendMore("id"))
	require.NoError(t, a.SendMore("<IDS|MSG>"))
	require.NoError(t, a.Send("body"))

	for _, want := range []string{"id", "<IDS|MSG>", "body"} {
		got, err := b.RecvStr()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPipeBothDirections(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	require.NoError(t, a.Send("ping"))
	got, err := b.RecvStr()
	require.NoError(t, err)
	assert.Equal(t, "ping", got)

	require.NoError(t, b.Send("pong"))
	got, err = a.RecvStr()
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
}

func TestPipeCloseUnblocksReceive(t *testing.T) {
	a, b := Pipe()

	done := make(chan error, 1)
	go func() {
		_, err := b.RecvStr()
		done <- err
	}()
	require.NoError(t, a.Close())

	err := <-done
	require.Error(t, err)
	var commErr *CommunicationError
	assert.True(t, errors.As(err, &commErr), "close must surface as CommunicationError, got %v", err)
}

func TestPipeDrainsInFlightFramesAfterClose(t *testing.T) {
	a, b := Pipe()

	require.NoError(t, a.Send("last words"))
	require.NoError(t, a.Close())

	got, err := b.RecvStr()
	require.NoError(t, err)
	assert.Equal(t, "last words", got)

	_, err = b.RecvStr()
	require.Error(t, err)
}

func TestPipeSendAfterCloseFails(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, b.Close())

	err := a.Send("too late")
	var commErr *CommunicationError
	assert.True(t, errors.As(err, &commErr))
}
