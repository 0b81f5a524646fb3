package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/models"
)

func TestSlowSinkDoesNotBlockReport(t *testing.T) {
	t.Parallel()

	r, _, capt := newTestRouter(t, Options{})
	q := NewSinkQueue(1, zerolog.Nop())
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	r.AddSink("index", q.Sink(func(models.IncidentEvent) error {
		started <- struct{}{}
		<-release
		return nil
	}))

	r.Report(event(models.PhaseLive, 1))
	<-started // worker holds the first write

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Report(event(models.PhaseLive, 2)) // fills the queue
		r.Report(event(models.PhaseLive, 3)) // dropped
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Report blocked on a slow sink")
	}

	st := r.Stats()
	assert.Equal(t, uint64(3), st.Reported)
	assert.Equal(t, uint64(1), st.SinkFailures)
	assert.Len(t, capt.calls, 3, "capture control still ran for every event")
	assert.Equal(t, uint64(1), q.Stats().Dropped)

	close(release)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, uint64(2), q.Stats().Written)
}

func TestSinkQueuePreservesOrder(t *testing.T) {
	t.Parallel()

	q := NewSinkQueue(8, zerolog.Nop())
	var mu sync.Mutex
	var got []string
	record := func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}
	sink := q.Sink(func(ev models.IncidentEvent) error {
		record("event:" + string(ev.Phase))
		return nil
	})
	clip := q.ClipSink(func(id, path string) error {
		record("clip:" + path)
		return errors.New("row missing")
	})

	require.NoError(t, sink(event(models.PhaseLive, 1)))
	require.NoError(t, clip("inc", "incident.mp4"))
	require.NoError(t, sink(event(models.PhaseCleared, 2)))
	require.NoError(t, q.Flush(context.Background()))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, []string{"event:Live", "clip:incident.mp4", "event:Cleared"}, got)
	st := q.Stats()
	assert.Equal(t, uint64(2), st.Written)
	assert.Equal(t, uint64(1), st.Failed)

	assert.ErrorIs(t, sink(event(models.PhaseLive, 3)), ErrSinkClosed)
}

func TestSinkQueueCloseHonoursContext(t *testing.T) {
	t.Parallel()

	q := NewSinkQueue(1, zerolog.Nop())
	release := make(chan struct{})
	defer close(release)
	sink := q.Sink(func(models.IncidentEvent) error {
		<-release
		return nil
	})
	require.NoError(t, sink(event(models.PhaseLive, 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}
