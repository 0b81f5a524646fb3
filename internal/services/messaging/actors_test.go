package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/services/actors"
)

func TestApplyActorMessage(t *testing.T) {
	arena := actors.NewArena()

	require.NoError(t, ApplyActorMessage(arena, []byte(`{"actor":{"id":"AAL2","kind":"aircraft","position":{"X":1,"Y":0,"Z":2}}}`)))
	require.NoError(t, ApplyActorMessage(arena, []byte(`{"op":"upsert","actor":{"id":"TUG7","kind":"vehicle"}}`)))
	assert.Equal(t, 2, arena.Len())

	h, ok := arena.Lookup("AAL2")
	require.True(t, ok)
	st, ok := arena.Get(h)
	require.True(t, ok)
	assert.Equal(t, 2.0, st.Position.Z)

	require.NoError(t, ApplyActorMessage(arena, []byte(`{"op":"despawn","actor":{"id":"TUG7"}}`)))
	assert.Equal(t, 1, arena.Len())

	assert.ErrorIs(t, ApplyActorMessage(arena, []byte(`{"op":"despawn","actor":{"id":"TUG7"}}`)), actors.ErrUnknownActor)
	assert.Error(t, ApplyActorMessage(arena, []byte(`{"op":"teleport","actor":{"id":"AAL2"}}`)))
	assert.Error(t, ApplyActorMessage(arena, []byte(`not json`)))
}
