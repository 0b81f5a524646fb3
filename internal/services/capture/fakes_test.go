package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/geo/r3"

	"airfield-sentinel-go/internal/models"
)

// counterSource stamps each rendered frame with a running count.
type counterSource struct {
	mu    sync.Mutex
	count byte
	panic bool
}

func (s *counterSource) Render(_ models.Pose, _ float64, dst *models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("render exploded")
	}
	s.count++
	dst.Data[0] = s.count
	return nil
}

type rigMap map[string]models.CameraRig

func (m rigMap) Rig(name string) (models.CameraRig, bool) {
	r, ok := m[name]
	return r, ok
}

func rigsWith(names ...string) (rigMap, *counterSource) {
	src := &counterSource{}
	m := rigMap{}
	for _, n := range names {
		m[n] = models.CameraRig{Name: n, Pose: models.Pose{Position: r3.Vector{Y: 10}}, FOV: 60, Source: src}
	}
	return m, src
}

// stampEncoder writes the frame's stamp as a one-byte image.
type stampEncoder struct{}

func (stampEncoder) Encode(f *models.Frame) ([]byte, error) {
	if len(f.Data) == 0 {
		return nil, errors.New("empty frame")
	}
	return []byte{f.Data[0]}, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, _ string, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	err := r.err
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return []byte("encoder said no"), err
	}
	return nil, nil
}

func (r *fakeRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}
