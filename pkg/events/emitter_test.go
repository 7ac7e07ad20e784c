package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, e *Emitter) []StreamEvent {
	t.Helper()
	var got []StreamEvent
	for ev := range e.Events() {
		got = append(got, ev)
	}
	return got
}

func TestEmitterDeliversInOrder(t *testing.T) {
	e := NewEmitter(8)
	ctx := context.Background()

	require.NoError(t, e.Meta(ctx, "th-1", "m-1"))
	require.NoError(t, e.Status(ctx, StagePlanning))
	require.NoError(t, e.Token(ctx, "hello"))
	require.NoError(t, e.Done(ctx))
	e.Close()

	got := drain(t, e)
	require.Len(t, got, 4)
	assert.Equal(t, EventTypeMeta, got[0].Type)
	assert.Equal(t, EventTypeStatus, got[1].Type)
	assert.Equal(t, EventTypeToken, got[2].Type)
	assert.Equal(t, EventTypeDone, got[3].Type)

	meta, ok := got[0].Payload.(MetaPayload)
	require.True(t, ok)
	assert.Equal(t, "th-1", meta.ThreadID)
	assert.Equal(t, "m-1", meta.MessageID)
}

func TestEmitterBlocksUntilConsumed(t *testing.T) {
	e := NewEmitter(0)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Status(ctx, StagePolicy)
	}()

	select {
	case ev := <-e.Events():
		assert.Equal(t, EventTypeStatus, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event to be delivered")
	}
	<-done
}

func TestEmitterCancelledSend(t *testing.T) {
	e := NewEmitter(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Status(ctx, StagePlanning)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEmitterCloseIdempotent(t *testing.T) {
	e := NewEmitter(1)
	e.Close()
	e.Close()

	_, open := <-e.Events()
	assert.False(t, open)
}
