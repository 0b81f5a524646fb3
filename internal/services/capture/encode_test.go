package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeJobArgs(t *testing.T) {
	t.Parallel()

	job := EncodeJob{IncidentID: "x", Dir: "/c/x", FPS: 30, Output: "incident.mp4", CRF: 23, Preset: "veryfast", FFmpeg: "ffmpeg"}
	assert.Equal(t, []string{
		"-y",
		"-framerate", "30",
		"-i", "frames_%04d.png",
		"-vf", "scale=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", "veryfast",
		"-crf", "23",
		"incident.mp4",
	}, job.Args())
	assert.Equal(t, filepath.Join("/c/x", "incident.mp4"), job.OutputPath())
}

func TestExecRunnerResolvesArgsInRelativeDir(t *testing.T) {
	if _, err := exec.LookPath("test"); err != nil {
		t.Skip("test(1) not available")
	}
	t.Chdir(t.TempDir())

	dir := filepath.Join("Captures", "inc1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf(framePattern, 0)), []byte{1}, 0o644))

	job := EncodeJob{IncidentID: "inc1", Dir: dir, FPS: 10, Output: "incident.mp4"}
	args := job.Args()
	input := args[slices.Index(args, "-i")+1]

	_, err := ExecRunner{}.Run(context.Background(), job.Dir, "test", "-f", fmt.Sprintf(input, 0))
	require.NoError(t, err, "frame pattern must resolve inside the job directory")

	require.NoError(t, os.WriteFile(job.OutputPath(), []byte{1}, 0o644))
	_, err = ExecRunner{}.Run(context.Background(), job.Dir, "test", "-f", args[len(args)-1])
	require.NoError(t, err, "output must land at OutputPath")
}

func TestEncodePoolOneJobPerDirectory(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}, 4), release: make(chan struct{})}
	pool := NewEncodePool(1, 1, runner, nil, zerolog.Nop())

	require.NoError(t, pool.Submit(EncodeJob{IncidentID: "a", Dir: "a", FFmpeg: "ffmpeg"}))
	<-runner.started

	assert.ErrorIs(t, pool.Submit(EncodeJob{IncidentID: "a", Dir: "a"}), ErrEncodeInFlight)
	// A repeat episode of the same incident records into its own directory.
	require.NoError(t, pool.Submit(EncodeJob{IncidentID: "a", Dir: filepath.Join("a", "r1"), FFmpeg: "ffmpeg"}))
	assert.ErrorIs(t, pool.Submit(EncodeJob{IncidentID: "c", Dir: "c"}), ErrQueueFull)

	close(runner.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 0, stats.InFlight)
	assert.ErrorIs(t, pool.Submit(EncodeJob{IncidentID: "d", Dir: "d"}), ErrPoolClosed)
}

func TestEncodePoolFailureKeepsFrames(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frames_0000.png")
	require.NoError(t, os.WriteFile(frame, []byte{1}, 0o644))

	runner := &fakeRunner{err: errors.New("exit status 1")}
	var (
		mu      sync.Mutex
		results []EncodeResult
	)
	pool := NewEncodePool(1, 2, runner, func(r EncodeResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}, zerolog.Nop())

	require.NoError(t, pool.Submit(EncodeJob{IncidentID: "a", Dir: dir, FPS: 30, Output: "out.mp4", FFmpeg: "ffmpeg", Cleanup: true}))
	require.NoError(t, pool.Shutdown(context.Background()))

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Empty(t, results[0].ClipPath)
	assert.FileExists(t, frame)
	assert.Equal(t, 1, pool.Stats().Failed)
}

func TestNotifyClipsSkipsFailures(t *testing.T) {
	t.Parallel()

	var got []string
	fn := NotifyClips(func(id, path string) { got = append(got, id+"="+path) })
	fn(EncodeResult{IncidentID: "a", ClipPath: "a.mp4"})
	fn(EncodeResult{IncidentID: "b", Err: errors.New("boom")})
	assert.Equal(t, []string{"a=a.mp4"}, got)
}
