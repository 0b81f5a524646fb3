// Package preview streams the active camera as MJPEG for operators.
package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/models"
)

const boundary = "frame"

// Rigs resolves the camera to preview.
type Rigs interface {
	Active() string
	Rig(name string) (models.CameraRig, bool)
}

// EncodeFunc turns a rendered frame into one JPEG part.
type EncodeFunc func(f *models.Frame) ([]byte, error)

type Publisher struct {
	rigs     Rigs
	encode   EncodeFunc
	interval time.Duration
	logger   zerolog.Logger

	frame *models.Frame

	jpegMutex  sync.RWMutex
	latestJPEG map[string][]byte

	notifyMutex sync.Mutex
	viewers     map[string]map[chan struct{}]struct{}
}

func NewPublisher(rigs Rigs, width, height int, fps float64, encode EncodeFunc, logger zerolog.Logger) *Publisher {
	if fps <= 0 {
		fps = 5
	}
	return &Publisher{
		rigs:       rigs,
		encode:     encode,
		interval:   time.Duration(float64(time.Second) / fps),
		logger:     logger,
		frame:      models.NewFrame(width, height),
		latestJPEG: make(map[string][]byte),
		viewers:    make(map[string]map[chan struct{}]struct{}),
	}
}

// Refresh renders the active camera once and wakes its viewers.
func (p *Publisher) Refresh() error {
	name := p.rigs.Active()
	if name == "" {
		return nil
	}
	rig, ok := p.rigs.Rig(name)
	if !ok || rig.Source == nil {
		return fmt.Errorf("camera %q has no frame source", name)
	}
	if err := rig.Source.Render(rig.View(), rig.FOV, p.frame); err != nil {
		return fmt.Errorf("render %q: %w", name, err)
	}
	jpeg, err := p.encode(p.frame)
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}

	p.jpegMutex.Lock()
	p.latestJPEG[name] = jpeg
	p.jpegMutex.Unlock()

	p.notifyViewers(name)
	return nil
}

// Run refreshes on a ticker until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Refresh(); err != nil {
				p.logger.Debug().Err(err).Msg("Preview refresh failed")
			}
		}
	}
}

// Latest returns the most recent JPEG for camera.
func (p *Publisher) Latest(camera string) ([]byte, bool) {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	b, ok := p.latestJPEG[camera]
	return b, ok && len(b) > 0
}

func (p *Publisher) notifyViewers(camera string) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	for ch := range p.viewers[camera] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) subscribe(camera string) chan struct{} {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	ch := make(chan struct{}, 1)
	if p.viewers[camera] == nil {
		p.viewers[camera] = make(map[chan struct{}]struct{})
	}
	p.viewers[camera][ch] = struct{}{}
	return ch
}

func (p *Publisher) unsubscribe(camera string, ch chan struct{}) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	delete(p.viewers[camera], ch)
	if len(p.viewers[camera]) == 0 {
		delete(p.viewers, camera)
	}
}

// Viewers counts open streams for camera.
func (p *Publisher) Viewers(camera string) int {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	return len(p.viewers[camera])
}

// placeholder is a flat grey frame shown until the camera has rendered.
func (p *Publisher) placeholder() []byte {
	f := models.NewFrame(p.frame.Width, p.frame.Height)
	for i := range f.Data {
		f.Data[i] = 64
	}
	b, err := p.encode(f)
	if err != nil {
		return nil
	}
	return b
}

func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, camera string) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := p.subscribe(camera)
	defer p.unsubscribe(camera, notify)

	writePart := func(jpeg []byte) bool {
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg)); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first, ok := p.Latest(camera)
	if !ok {
		first = p.placeholder()
	}
	if len(first) > 0 && !writePart(first) {
		return
	}

	keepaliveTicker := time.NewTicker(2 * time.Second)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-keepaliveTicker.C:
		}
		if buf, ok := p.Latest(camera); ok && !writePart(buf) {
			return
		}
	}
}
