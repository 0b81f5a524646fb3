package proximity

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	lru "github.com/hashicorp/golang-lru/v2"

	"airfield-sentinel-go/internal/models"
)

// PairKey is the unordered pair of actor handle keys, smaller first.
type PairKey struct {
	Lo uint64
	Hi uint64
}

func MakePairKey(a, b uint64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// PairEntry tracks one pair's incident episode.
type PairEntry struct {
	IncidentID    string
	FirstID       string // lexicographically smaller actor id
	SecondID      string
	Live          bool
	Predicted     bool
	LastClearance float64
	LastFocal     r3.Vector
}

// Armed reports whether the pair owes a Cleared event.
func (e *PairEntry) Armed() bool { return e.Live || e.Predicted }

// PairTable is an LRU-bounded map of pair state with a per-actor index so
// every pair involving a despawned actor can be dropped at once.
type PairTable struct {
	cache   *lru.Cache[PairKey, *PairEntry]
	byActor map[uint64]map[PairKey]struct{}
	onEvict func(PairKey, *PairEntry)
}

// NewPairTable builds a table holding at most size pairs. onEvict sees every
// entry that leaves the table, by capacity or by removal.
func NewPairTable(size int, onEvict func(PairKey, *PairEntry)) (*PairTable, error) {
	t := &PairTable{
		byActor: make(map[uint64]map[PairKey]struct{}),
		onEvict: onEvict,
	}
	cache, err := lru.NewWithEvict[PairKey, *PairEntry](size, t.evicted)
	if err != nil {
		return nil, fmt.Errorf("pair table: %w", err)
	}
	t.cache = cache
	return t, nil
}

func (t *PairTable) evicted(k PairKey, e *PairEntry) {
	t.unindex(k.Lo, k)
	t.unindex(k.Hi, k)
	if t.onEvict != nil {
		t.onEvict(k, e)
	}
}

func (t *PairTable) unindex(actor uint64, k PairKey) {
	if set, ok := t.byActor[actor]; ok {
		delete(set, k)
		if len(set) == 0 {
			delete(t.byActor, actor)
		}
	}
}

// Acquire returns the entry for k, creating it with a fresh incident id the
// first time the pair is seen.
func (t *PairTable) Acquire(k PairKey, idA, idB string, now time.Time) *PairEntry {
	if e, ok := t.cache.Get(k); ok {
		return e
	}
	first, second := idA, idB
	if first > second {
		first, second = second, first
	}
	e := &PairEntry{
		IncidentID: IncidentID(models.IncidentTypeWingClearance, first, second, now),
		FirstID:    first,
		SecondID:   second,
	}
	t.cache.Add(k, e)
	for _, a := range []uint64{k.Lo, k.Hi} {
		set, ok := t.byActor[a]
		if !ok {
			set = make(map[PairKey]struct{})
			t.byActor[a] = set
		}
		set[k] = struct{}{}
	}
	return e
}

func (t *PairTable) Peek(k PairKey) (*PairEntry, bool) {
	return t.cache.Peek(k)
}

// EvictActor drops every pair that involves the actor.
func (t *PairTable) EvictActor(actor uint64) int {
	set := t.byActor[actor]
	keys := make([]PairKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	for _, k := range keys {
		t.cache.Remove(k)
	}
	return len(keys)
}

func (t *PairTable) Len() int { return t.cache.Len() }

// IncidentID formats the shared id for a canonical pair. Both participants
// resolve to the same id since callers pass the ids in sorted order.
func IncidentID(typ models.IncidentType, first, second string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s_%s_vs_%s_%s%03dZ", typ, first, second,
		now.Format("20060102T150405"), now.Nanosecond()/int(time.Millisecond))
}
