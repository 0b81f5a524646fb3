package router

import (
	"errors"
	"os"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/geo"
	"airfield-sentinel-go/internal/models"
)

type fakeArbiter struct {
	camera string
	calls  int
	panic  bool
}

func (a *fakeArbiter) Select(models.IncidentEvent) (string, bool) {
	a.calls++
	if a.panic {
		panic("rig registry exploded")
	}
	return a.camera, a.camera != ""
}

type captureCall struct {
	op     string
	id     string
	camera string
	delay  float64
}

type fakeCapture struct {
	calls []captureCall
}

func (c *fakeCapture) StartOrUpdate(id, camera string) {
	c.calls = append(c.calls, captureCall{op: "start", id: id, camera: camera})
}

func (c *fakeCapture) Arm(id, camera string) {
	c.calls = append(c.calls, captureCall{op: "arm", id: id, camera: camera})
}

func (c *fakeCapture) ScheduleStop(id string, delay float64) error {
	c.calls = append(c.calls, captureCall{op: "stop", id: id, delay: delay})
	return nil
}

func event(phase models.IncidentPhase, simTime float64) models.IncidentEvent {
	return models.IncidentEvent{
		EventID:    "e-" + string(phase),
		IncidentID: "WingClearance_A_vs_B_20240101T000000000Z",
		Type:       models.IncidentTypeWingClearance,
		Phase:      phase,
		SimTime:    simTime,
		WorldPos:   r3.Vector{X: 100, Y: 10, Z: -200},
	}
}

func newTestRouter(t *testing.T, opts Options) (*Router, *fakeArbiter, *fakeCapture) {
	t.Helper()
	mapper := geo.NewMapper(geo.NewGeodeticFrame(36.0920, -79.9357), 1, 0, zerolog.Nop())
	arb := &fakeArbiter{camera: "GCam_North"}
	capt := &fakeCapture{}
	r := New(opts, mapper, NewEventLog(t.TempDir()), arb, capt, zerolog.Nop())
	return r, arb, capt
}

func TestReportLiveEnrichesLogsAndStartsCapture(t *testing.T) {
	t.Parallel()

	r, arb, capt := newTestRouter(t, Options{PostRollSec: 5})
	var sunk []models.IncidentEvent
	r.AddSink("memory", func(ev models.IncidentEvent) error {
		sunk = append(sunk, ev)
		return nil
	})

	r.Report(event(models.PhaseLive, 10))

	assert.Equal(t, 1, arb.calls)
	require.Len(t, capt.calls, 1)
	assert.Equal(t, captureCall{op: "start", id: "WingClearance_A_vs_B_20240101T000000000Z", camera: "GCam_North"}, capt.calls[0])

	logged, err := r.EventLog().Read("WingClearance_A_vs_B_20240101T000000000Z")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.True(t, logged[0].GeoEnriched)
	assert.InDelta(t, 10.0, logged[0].Alt, 1e-9)
	assert.Less(t, logged[0].Lat, 36.0920, "negative Z is south of the reference")

	require.Len(t, sunk, 1)
	assert.Equal(t, logged[0].Lat, sunk[0].Lat)
	assert.Equal(t, uint64(1), r.Stats().Reported)
}

func TestClearedSchedulesStopAfterPostRoll(t *testing.T) {
	t.Parallel()

	r, _, capt := newTestRouter(t, Options{PostRollSec: 5})
	id := event(models.PhaseCleared, 0).IncidentID

	r.Report(event(models.PhaseLive, 10))
	r.Report(event(models.PhaseCleared, 12))

	at, ok := r.PendingStop(id)
	require.True(t, ok)
	assert.Equal(t, 17.0, at)

	r.Tick(16.9)
	assert.Len(t, capt.calls, 1, "no stop before post-roll elapses")

	r.Tick(17)
	require.Len(t, capt.calls, 2)
	assert.Equal(t, captureCall{op: "stop", id: id, delay: 0}, capt.calls[1])

	r.Tick(30)
	assert.Len(t, capt.calls, 2, "stop fires once")
}

func TestKeepAliveCancelsPendingStop(t *testing.T) {
	t.Parallel()

	r, _, capt := newTestRouter(t, Options{PostRollSec: 5})
	r.Report(event(models.PhaseCleared, 12))
	r.Report(event(models.PhasePredicted, 14))

	_, ok := r.PendingStop(event(models.PhaseLive, 0).IncidentID)
	assert.False(t, ok)

	r.Tick(100)
	for _, c := range capt.calls {
		assert.NotEqual(t, "stop", c.op)
	}
}

func TestArmOnPredicted(t *testing.T) {
	t.Parallel()

	r, _, capt := newTestRouter(t, Options{ArmOnPredicted: true})
	r.Report(event(models.PhasePredicted, 1))
	r.Report(event(models.PhaseLive, 2))

	require.Len(t, capt.calls, 2)
	assert.Equal(t, "arm", capt.calls[0].op)
	assert.Equal(t, "start", capt.calls[1].op)
}

func TestReportAbsorbsFailures(t *testing.T) {
	t.Parallel()

	r, arb, _ := newTestRouter(t, Options{})
	r.AddSink("broken", func(models.IncidentEvent) error { return errors.New("nats down") })
	arb.panic = true

	assert.NotPanics(t, func() { r.Report(event(models.PhaseLive, 1)) })

	st := r.Stats()
	assert.Equal(t, uint64(1), st.SinkFailures)
	assert.Equal(t, uint64(1), st.Panics)
}

func TestReportWithoutCollaborators(t *testing.T) {
	t.Parallel()

	r := New(Options{}, nil, nil, nil, nil, zerolog.Nop())
	assert.NotPanics(t, func() {
		r.Report(event(models.PhaseLive, 1))
		r.Report(event(models.PhaseCleared, 2))
		r.Tick(10)
	})
}

func TestClipReadyFansOut(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t, Options{})
	var got []string
	r.AddClipSink("a", func(id, path string) error {
		got = append(got, id+"|"+path)
		return nil
	})
	r.AddClipSink("b", func(string, string) error { return errors.New("ignored") })

	r.ClipReady("inc", "/tmp/inc/incident.mp4")
	assert.Equal(t, []string{"inc|/tmp/inc/incident.mp4"}, got)
}

func TestEventLogSkipsTornLines(t *testing.T) {
	t.Parallel()

	l := NewEventLog(t.TempDir())
	ev := event(models.PhaseLive, 1)
	require.NoError(t, l.Append(ev))

	f, err := os.OpenFile(l.Path(ev.IncidentID), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"incidentId":"trunc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, l.Append(event(models.PhaseCleared, 2)))

	got, err := l.Read(ev.IncidentID)
	require.NoError(t, err)
	require.Len(t, got, 1, "the torn line swallows the next append on the same line")
	assert.Equal(t, models.PhaseLive, got[0].Phase)

	_, err = l.Read("missing")
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestTimerQueue(t *testing.T) {
	t.Parallel()

	q := NewTimerQueue()
	q.Schedule("b", 5)
	q.Schedule("a", 3)
	q.Schedule("c", 9)
	q.Schedule("b", 1)
	assert.True(t, q.Cancel("c"))
	assert.False(t, q.Cancel("c"))

	assert.Empty(t, q.Due(0.5))
	assert.Equal(t, []string{"b", "a"}, q.Due(10))
	assert.Zero(t, q.Len())
}
