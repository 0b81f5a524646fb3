// Package actors keeps the live actor table. Actors live in reusable slots
// addressed by a generation-checked handle so stale references never resolve
// to a newer actor that happens to reuse the slot.
package actors

import (
	"errors"
	"sort"
	"sync"

	"github.com/golang/geo/r3"

	"airfield-sentinel-go/internal/models"
)

var (
	ErrUnknownActor = errors.New("unknown actor")
	ErrInvalidActor = errors.New("actor id is required")
)

// Handle is a stable integer identity for one actor lifetime.
type Handle struct {
	Slot uint32 `json:"slot"`
	Gen  uint32 `json:"gen"`
}

// Key packs the handle into a single comparable integer.
func (h Handle) Key() uint64 {
	return uint64(h.Gen)<<32 | uint64(h.Slot)
}

// Entry pairs an actor state with the handle it was stored under.
type Entry struct {
	Handle Handle
	State  models.ActorState
}

type slot struct {
	gen   uint32
	live  bool
	state models.ActorState

	sampledAt float64 // engine seconds of the last upsert
}

// DespawnHook is called outside the arena lock after an actor is removed.
type DespawnHook func(id string, h Handle)

type Arena struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
	byID  map[string]Handle
	hooks []DespawnHook

	now func() float64
}

func NewArena() *Arena {
	return &Arena{byID: make(map[string]Handle)}
}

// SetTimeSource supplies engine time for velocity derivation. Without one,
// velocities are stored exactly as received.
func (a *Arena) SetTimeSource(now func() float64) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// OnDespawn registers a hook. Hooks must not call back into Despawn.
func (a *Arena) OnDespawn(fn DespawnHook) {
	a.mu.Lock()
	a.hooks = append(a.hooks, fn)
	a.mu.Unlock()
}

// Upsert stores the latest state for an actor, allocating a slot on first sight.
// A zero velocity is replaced by the position delta over engine time since
// the previous sample; when no engine time has passed the previous velocity
// is kept.
func (a *Arena) Upsert(s models.ActorState) (Handle, error) {
	if s.ID == "" {
		return Handle{}, ErrInvalidActor
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var t float64
	if a.now != nil {
		t = a.now()
	}

	if h, ok := a.byID[s.ID]; ok {
		sl := &a.slots[h.Slot]
		if a.now != nil && s.Velocity == (r3.Vector{}) {
			if dt := t - sl.sampledAt; dt > 0 {
				s.Velocity = s.Position.Sub(sl.state.Position).Mul(1 / dt)
			} else {
				s.Velocity = sl.state.Velocity
			}
		}
		sl.state = s
		sl.sampledAt = t
		return h, nil
	}

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
	}

	sl := &a.slots[idx]
	sl.gen++
	sl.live = true
	sl.state = s
	sl.sampledAt = t

	h := Handle{Slot: idx, Gen: sl.gen}
	a.byID[s.ID] = h
	return h, nil
}

// Despawn frees the actor's slot and notifies hooks.
func (a *Arena) Despawn(id string) error {
	a.mu.Lock()
	h, ok := a.byID[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownActor
	}
	delete(a.byID, id)
	a.slots[h.Slot].live = false
	a.slots[h.Slot].state = models.ActorState{}
	a.free = append(a.free, h.Slot)
	hooks := append([]DespawnHook(nil), a.hooks...)
	a.mu.Unlock()

	for _, fn := range hooks {
		fn(id, h)
	}
	return nil
}

func (a *Arena) Lookup(id string) (Handle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.byID[id]
	return h, ok
}

// Get resolves a handle, failing for stale generations.
func (a *Arena) Get(h Handle) (models.ActorState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(h.Slot) >= len(a.slots) {
		return models.ActorState{}, false
	}
	sl := a.slots[h.Slot]
	if !sl.live || sl.gen != h.Gen {
		return models.ActorState{}, false
	}
	return sl.state, true
}

func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byID)
}

// Snapshot copies every live actor, ordered by id.
func (a *Arena) Snapshot() []Entry {
	a.mu.RLock()
	out := make([]Entry, 0, len(a.byID))
	for _, h := range a.byID {
		out = append(out, Entry{Handle: h, State: a.slots[h.Slot].state})
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].State.ID < out[j].State.ID })
	return out
}
