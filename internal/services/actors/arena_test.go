package actors

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/models"
)

func TestArenaUpsertAndSnapshot(t *testing.T) {
	t.Parallel()

	a := NewArena()
	hb, err := a.Upsert(models.ActorState{ID: "B", Position: r3.Vector{X: 1}})
	require.NoError(t, err)
	ha, err := a.Upsert(models.ActorState{ID: "A"})
	require.NoError(t, err)
	assert.NotEqual(t, ha.Key(), hb.Key())

	again, err := a.Upsert(models.ActorState{ID: "B", Position: r3.Vector{X: 2}})
	require.NoError(t, err)
	assert.Equal(t, hb, again)

	snap := a.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "A", snap[0].State.ID)
	assert.Equal(t, 2.0, snap[1].State.Position.X)

	_, err = a.Upsert(models.ActorState{})
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestArenaDerivesMissingVelocity(t *testing.T) {
	t.Parallel()

	now := 10.0
	a := NewArena()
	a.SetTimeSource(func() float64 { return now })

	h, err := a.Upsert(models.ActorState{ID: "DAL1", Position: r3.Vector{X: 0}})
	require.NoError(t, err)
	got, _ := a.Get(h)
	assert.Equal(t, r3.Vector{}, got.Velocity, "one sample has no velocity")

	now = 10.5
	_, err = a.Upsert(models.ActorState{ID: "DAL1", Position: r3.Vector{X: 2, Z: -1}})
	require.NoError(t, err)
	got, _ = a.Get(h)
	assert.InDelta(t, 4, got.Velocity.X, 1e-9)
	assert.InDelta(t, -2, got.Velocity.Z, 1e-9)

	// Paused: engine time stands still, so the last estimate is kept.
	_, err = a.Upsert(models.ActorState{ID: "DAL1", Position: r3.Vector{X: 2, Z: -1}})
	require.NoError(t, err)
	got, _ = a.Get(h)
	assert.InDelta(t, 4, got.Velocity.X, 1e-9)

	// A reported velocity always wins.
	now = 11
	_, err = a.Upsert(models.ActorState{ID: "DAL1", Position: r3.Vector{X: 100}, Velocity: r3.Vector{Y: 1}})
	require.NoError(t, err)
	got, _ = a.Get(h)
	assert.Equal(t, r3.Vector{Y: 1}, got.Velocity)
}

func TestArenaWithoutTimeSourceKeepsVelocity(t *testing.T) {
	t.Parallel()

	a := NewArena()
	h, err := a.Upsert(models.ActorState{ID: "DAL1"})
	require.NoError(t, err)
	_, err = a.Upsert(models.ActorState{ID: "DAL1", Position: r3.Vector{X: 5}})
	require.NoError(t, err)
	got, _ := a.Get(h)
	assert.Equal(t, r3.Vector{}, got.Velocity)
}

func TestArenaDespawnReusesSlotWithNewGeneration(t *testing.T) {
	t.Parallel()

	a := NewArena()
	var despawned []string
	a.OnDespawn(func(id string, _ Handle) { despawned = append(despawned, id) })

	h1, err := a.Upsert(models.ActorState{ID: "AAL1"})
	require.NoError(t, err)
	require.NoError(t, a.Despawn("AAL1"))
	assert.ErrorIs(t, a.Despawn("AAL1"), ErrUnknownActor)
	assert.Equal(t, []string{"AAL1"}, despawned)

	_, ok := a.Get(h1)
	assert.False(t, ok)

	h2, err := a.Upsert(models.ActorState{ID: "DAL2"})
	require.NoError(t, err)
	assert.Equal(t, h1.Slot, h2.Slot)
	assert.NotEqual(t, h1.Gen, h2.Gen)

	s, ok := a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "DAL2", s.ID)
	assert.Equal(t, 1, a.Len())
}
