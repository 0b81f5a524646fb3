package capture

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/simclock"
)

const frameStep = 100 * time.Millisecond

func testOpts(root string) Options {
	return Options{
		Root:         root,
		Width:        4,
		Height:       2,
		FPS:          10,
		PreRoll:      true,
		PreRollSec:   0.3,
		EncodeOnStop: true,
		FFmpegPath:   "ffmpeg",
		Output:       "incident.mp4",
		CRF:          23,
		Preset:       "veryfast",
		Cleanup:      true,
	}
}

// step ticks then advances the clock by one capture interval.
func step(clk *simclock.Clock, tick func(), n int) {
	for i := 0; i < n; i++ {
		tick()
		clk.Advance(frameStep)
	}
}

func readStamp(t *testing.T, dir string, idx int) byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "frames_000"+string(rune('0'+idx))+".png"))
	require.NoError(t, err)
	require.Len(t, data, 1)
	return data[0]
}

func TestEngineFlushesPreRollThenRecords(t *testing.T) {
	root := t.TempDir()
	clk := simclock.New(0, 0)
	rigs, _ := rigsWith("Apron")

	runner := &fakeRunner{}
	var (
		mu    sync.Mutex
		clips []string
	)
	pool := NewEncodePool(1, 4, runner, NotifyClips(func(id, path string) {
		mu.Lock()
		clips = append(clips, path)
		mu.Unlock()
	}), zerolog.Nop())
	e := NewEngine(testOpts(root), clk, rigs, stampEncoder{}, pool, zerolog.Nop())

	const id = "WingClearance_A_vs_B_20230501T120000000Z"
	e.Arm(id, "Apron")
	step(clk, e.Tick, 5)

	info, ok := e.Session(id)
	require.True(t, ok)
	assert.False(t, info.Started)
	assert.Equal(t, 3, info.Buffered)
	assert.Equal(t, 0, info.Frames)

	e.StartOrUpdate(id, "Apron")
	step(clk, e.Tick, 1)

	dir := models.IncidentDir(root, id)
	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, id, m.IncidentID)
	assert.Equal(t, 10, m.FPS)
	assert.InDelta(t, 0.2, m.StartSimSec, 1e-9)

	// Stamps 3..5 came from pre-roll, 6 is the live frame.
	for i, want := range []byte{3, 4, 5, 6} {
		assert.Equal(t, want, readStamp(t, dir, i), "frame %d", i)
	}

	require.NoError(t, e.ScheduleStop(id, 0.2))
	for i := 0; i < 10; i++ {
		if _, open := e.Session(id); !open {
			break
		}
		step(clk, e.Tick, 1)
	}
	_, open := e.Session(id)
	require.False(t, open)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ffmpeg", calls[0][0])
	assert.Contains(t, calls[0], "frames_%04d.png")
	assert.Equal(t, []string{filepath.Join(dir, "incident.mp4")}, clips)

	leftover, err := filepath.Glob(filepath.Join(dir, "frames_*.png"))
	require.NoError(t, err)
	assert.Empty(t, leftover)
	assert.FileExists(t, filepath.Join(dir, "manifest.json"))
}

func TestEnginePreRollBounded(t *testing.T) {
	clk := simclock.New(0, 0)
	rigs, _ := rigsWith("Apron")
	e := NewEngine(testOpts(t.TempDir()), clk, rigs, stampEncoder{}, nil, zerolog.Nop())

	e.Arm("a", "Apron")
	for i := 0; i < 50; i++ {
		step(clk, e.Tick, 1)
		info, _ := e.Session("a")
		assert.LessOrEqual(t, info.Buffered, 3)
	}
}

func TestEngineIdleTimeout(t *testing.T) {
	opts := testOpts(t.TempDir())
	opts.IdleTimeout = true
	opts.IdleTimeoutSec = 0.5
	opts.EncodeOnStop = false

	clk := simclock.New(0, 0)
	rigs, _ := rigsWith("Apron")
	e := NewEngine(opts, clk, rigs, stampEncoder{}, nil, zerolog.Nop())

	e.StartOrUpdate("a", "Apron")
	step(clk, e.Tick, 3)
	info, _ := e.Session("a")
	assert.Nil(t, info.StopAt, "still fresh")

	var tripped float64
	for i := 0; i < 20; i++ {
		step(clk, e.Tick, 1)
		info, ok := e.Session("a")
		if !ok {
			break
		}
		if info.StopAt != nil && tripped == 0 {
			tripped = *info.StopAt
		}
		if info.StopAt != nil {
			assert.Equal(t, tripped, *info.StopAt, "idle stop scheduled once")
		}
	}
	_, open := e.Session("a")
	assert.False(t, open)
	assert.Greater(t, tripped, 0.5)
}

func TestEngineScheduleStopKeepsLatest(t *testing.T) {
	clk := simclock.New(0, 0)
	rigs, _ := rigsWith("Apron")
	e := NewEngine(testOpts(t.TempDir()), clk, rigs, stampEncoder{}, nil, zerolog.Nop())

	assert.ErrorIs(t, e.ScheduleStop("missing", 1), ErrUnknownSession)

	e.StartOrUpdate("a", "Apron")
	require.NoError(t, e.ScheduleStop("a", 5))
	require.NoError(t, e.ScheduleStop("a", 1))
	info, _ := e.Session("a")
	require.NotNil(t, info.StopAt)
	assert.Equal(t, 5.0, *info.StopAt)

	e.StartOrUpdate("a", "Apron")
	info, _ = e.Session("a")
	assert.Nil(t, info.StopAt)
}

func TestEngineDropsUnstartedSession(t *testing.T) {
	root := t.TempDir()
	clk := simclock.New(0, 0)
	rigs, _ := rigsWith("Apron")
	runner := &fakeRunner{}
	pool := NewEncodePool(1, 1, runner, nil, zerolog.Nop())
	e := NewEngine(testOpts(root), clk, rigs, stampEncoder{}, pool, zerolog.Nop())

	e.Arm("a", "Apron")
	require.NoError(t, e.ScheduleStop("a", 0))
	e.Tick()

	_, open := e.Session("a")
	assert.False(t, open)
	_, err := os.Stat(models.IncidentDir(root, "a"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, e.Shutdown(context.Background()))
	assert.Empty(t, runner.Calls())
}

func TestEngineRepeatEpisodeGetsSubdir(t *testing.T) {
	root := t.TempDir()
	clk := simclock.New(0, 0)
	rigs, _ := rigsWith("Apron")
	opts := testOpts(root)
	opts.EncodeOnStop = false
	e := NewEngine(opts, clk, rigs, stampEncoder{}, nil, zerolog.Nop())

	e.StartOrUpdate("a", "Apron")
	step(clk, e.Tick, 1)
	require.NoError(t, e.ForceStop("a"))
	assert.ErrorIs(t, e.ForceStop("a"), ErrUnknownSession)

	e.StartOrUpdate("a", "Apron")
	info, ok := e.Session("a")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(models.IncidentDir(root, "a"), "r1"), info.Dir)
	assert.Equal(t, 1, e.ForceStopAll())
}

func TestEngineRepeatEpisodeEncodesWhileFirstInFlight(t *testing.T) {
	root := t.TempDir()
	clk := simclock.New(0, 0)
	rigs, _ := rigsWith("Apron")

	runner := &fakeRunner{started: make(chan struct{}, 4), release: make(chan struct{})}
	var (
		mu    sync.Mutex
		clips []string
	)
	pool := NewEncodePool(1, 4, runner, NotifyClips(func(_, path string) {
		mu.Lock()
		clips = append(clips, path)
		mu.Unlock()
	}), zerolog.Nop())
	e := NewEngine(testOpts(root), clk, rigs, stampEncoder{}, pool, zerolog.Nop())

	e.StartOrUpdate("a", "Apron")
	step(clk, e.Tick, 1)
	require.NoError(t, e.ForceStop("a"))
	<-runner.started

	e.StartOrUpdate("a", "Apron")
	step(clk, e.Tick, 1)
	require.NoError(t, e.ForceStop("a"))
	assert.Equal(t, 1, pool.Stats().Queued, "second episode queued behind the first")

	close(runner.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	dir := models.IncidentDir(root, "a")
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "incident.mp4"),
		filepath.Join(dir, "r1", "incident.mp4"),
	}, clips)
	assert.Equal(t, 2, pool.Stats().Succeeded)
}

func TestEngineSurvivesBadCameras(t *testing.T) {
	clk := simclock.New(0, 0)
	rigs, src := rigsWith("Apron")
	src.panic = true
	opts := testOpts(t.TempDir())
	opts.EncodeOnStop = false
	e := NewEngine(opts, clk, rigs, stampEncoder{}, nil, zerolog.Nop())

	e.StartOrUpdate("a", "Apron")
	e.StartOrUpdate("b", "Nowhere")
	assert.NotPanics(t, func() { step(clk, e.Tick, 3) })

	sessions := e.Sessions()
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, 0, s.Frames)
	}
}

func TestEngineNormalisesOptions(t *testing.T) {
	opts := testOpts(t.TempDir())
	opts.Width, opts.Height, opts.FPS = 1279, 721, 0
	e := NewEngine(opts, simclock.New(0, 0), rigMap{}, stampEncoder{}, nil, zerolog.Nop())

	got := e.Options()
	assert.Equal(t, 1280, got.Width)
	assert.Equal(t, 722, got.Height)
	assert.Equal(t, 1, got.FPS)
	assert.Equal(t, "incident.mp4", got.Output)
}
