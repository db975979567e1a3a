// Package handler serves the device framebuffer over HTTP and forwards touch
// input to the device. It is a reference presentation sink.
package handler

import (
	"encoding/json"
	"image/png"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rcarmo/go-devscreen/internal/device"
	"github.com/rcarmo/go-devscreen/internal/framebuffer"
	"github.com/rcarmo/go-devscreen/internal/logging"
)

// Device is the client surface the handlers need.
type Device interface {
	Framebuffer() *framebuffer.Framebuffer
	State() device.State
	SendTouch(x, y uint16) bool
}

// Screen is a device.Sink that records how many frames have been applied and
// the latest connection state. Redraws happen on demand when a consumer
// fetches the screen, so bursts of updates coalesce naturally.
type Screen struct {
	frames atomic.Uint64

	mu    sync.RWMutex
	state device.State
}

var (
	_ device.Sink      = (*Screen)(nil)
	_ device.StateSink = (*Screen)(nil)
)

func NewScreen() *Screen {
	return &Screen{}
}

func (s *Screen) FramebufferUpdated(*framebuffer.Framebuffer) {
	s.frames.Add(1)
}

func (s *Screen) StateChanged(state device.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Frames returns the number of update messages applied so far.
func (s *Screen) Frames() uint64 {
	return s.frames.Load()
}

// LastState returns the most recently reported connection state.
func (s *Screen) LastState() device.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Options configures the router.
type Options struct {
	Logger *logging.Logger
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

type stateResponse struct {
	State  string `json:"state"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Frames uint64 `json:"frames"`
}

type api struct {
	dev    Device
	screen *Screen
	log    *logging.Logger
}

// NewRouter builds the HTTP routes for dev.
func NewRouter(dev Device, screen *Screen, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	a := &api{dev: dev, screen: screen, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)
	r.Use(requestLoggingMiddleware(log))

	r.Get("/healthz", a.healthz)
	r.Get("/state", a.state)
	r.Get("/screen.png", a.screenPNG)
	r.Get("/screen.raw", a.screenRaw)
	r.Post("/touch", a.touch)

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (a *api) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (a *api) state(w http.ResponseWriter, _ *http.Request) {
	fb := a.dev.Framebuffer()

	resp := stateResponse{
		State:  a.dev.State().String(),
		Width:  fb.Width(),
		Height: fb.Height(),
		Frames: a.screen.Frames(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.log.Warn("encode state: %v", err)
	}
}

func (a *api) screenPNG(w http.ResponseWriter, _ *http.Request) {
	img := a.dev.Framebuffer().Image()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frames", strconv.FormatUint(a.screen.Frames(), 10))

	if err := png.Encode(w, img); err != nil {
		a.log.Warn("encode png: %v", err)
	}
}

func (a *api) screenRaw(w http.ResponseWriter, _ *http.Request) {
	fb := a.dev.Framebuffer()
	pix := fb.Snapshot()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Width", strconv.Itoa(fb.Width()))
	w.Header().Set("X-Height", strconv.Itoa(fb.Height()))
	w.Header().Set("Content-Length", strconv.Itoa(len(pix)))

	_, _ = w.Write(pix)
}

func (a *api) touch(w http.ResponseWriter, r *http.Request) {
	x, errX := parseCoord(r.URL.Query().Get("x"))
	y, errY := parseCoord(r.URL.Query().Get("y"))
	if errX != nil || errY != nil {
		http.Error(w, "x and y must be integers in [0, 65535]", http.StatusBadRequest)
		return
	}

	a.log.Debug("clicked %d,%d", x, y)

	if !a.dev.SendTouch(x, y) {
		http.Error(w, "device not connected", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func parseCoord(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
