// Package slideshow steps through the gallery images on a timer
package slideshow

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	DefaultInterval = 4000 * time.Millisecond
	MinInterval     = 500 * time.Millisecond
	MaxInterval     = 7000 * time.Millisecond
)

var (
	ErrEmptyList = errors.New("no images to show")
	ErrClosed    = errors.New("slideshow is closed")
	ErrNotFound  = errors.New("image is not in the gallery")
)

type Status int

const (
	Closed Status = iota
	Open
)

func (s Status) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Ticker is the subset of time.Ticker the slideshow needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// State is a copy of the slideshow as shown to the browser.
type State struct {
	Status       string `json:"status"`
	Index        int    `json:"index"`
	Total        int    `json:"total"`
	Current      string `json:"current,omitempty"`
	IntervalMs   int64  `json:"interval_ms"`
	Audio        string `json:"audio,omitempty"`
	AudioPlaying bool   `json:"audio_playing"`
}

// Slideshow is Closed or Open. While Open it owns exactly one ticker, which is
// replaced whenever the interval changes and stopped on Close.
type Slideshow struct {
	images    func() []string
	newTicker TickerFunc
	onChange  func(State)

	mu           sync.Mutex
	status       Status
	index        int
	interval     time.Duration
	audio        string
	audioPlaying bool

	ticker Ticker
	stop   chan struct{}
}

type Option func(*Slideshow)

// WithTicker replaces time.NewTicker.
func WithTicker(fn TickerFunc) Option {
	return func(s *Slideshow) { s.newTicker = fn }
}

func WithInterval(d time.Duration) Option {
	return func(s *Slideshow) { s.interval = ClampInterval(d) }
}

// WithOnChange registers fn to receive the state after every change. It is
// called without the slideshow lock held.
func WithOnChange(fn func(State)) Option {
	return func(s *Slideshow) { s.onChange = fn }
}

// New builds a closed slideshow over the list returned by images.
func New(images func() []string, opts ...Option) *Slideshow {
	s := &Slideshow{
		images:    images,
		newTicker: newTimeTicker,
		interval:  DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampInterval bounds d to [MinInterval, MaxInterval]; zero means the default.
func ClampInterval(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultInterval
	}
	return min(max(d, MinInterval), MaxInterval)
}

// Open starts the slideshow at the first image.
func (s *Slideshow) Open() error {
	return s.openAt(func([]string) (int, error) { return 0, nil })
}

// OpenAt starts the slideshow at ref.
func (s *Slideshow) OpenAt(ref string) error {
	return s.openAt(func(images []string) (int, error) {
		i := slices.Index(images, ref)
		if i < 0 {
			return 0, ErrNotFound
		}
		return i, nil
	})
}

func (s *Slideshow) openAt(pick func([]string) (int, error)) error {
	images := s.images()

	s.mu.Lock()
	if len(images) == 0 {
		s.mu.Unlock()
		slog.Info("refusing to open slideshow with no images")
		return ErrEmptyList
	}
	start, err := pick(images)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.status = Open
	s.index = start
	s.startTicker()
	state := s.stateLocked(images)
	s.mu.Unlock()

	slog.Info("slideshow opened", "index", start, "total", len(images), "interval", s.Interval())
	s.changed(state)
	return nil
}

// Close stops the ticker and pauses attached audio.
func (s *Slideshow) Close() {
	images := s.images()

	s.mu.Lock()
	s.closeLocked()
	state := s.stateLocked(images)
	s.mu.Unlock()

	s.changed(state)
}

func (s *Slideshow) closeLocked() {
	s.stopTicker()
	s.status = Closed
	s.audioPlaying = false
}

// Next moves forward one image without resetting the ticker.
func (s *Slideshow) Next() (State, error) {
	return s.step(1)
}

// Prev moves back one image without resetting the ticker.
func (s *Slideshow) Prev() (State, error) {
	return s.step(-1)
}

func (s *Slideshow) step(delta int) (State, error) {
	images := s.images()

	s.mu.Lock()
	if s.status != Open {
		state := s.stateLocked(images)
		s.mu.Unlock()
		return state, ErrClosed
	}
	if len(images) == 0 {
		s.closeLocked()
		state := s.stateLocked(images)
		s.mu.Unlock()
		s.changed(state)
		return state, ErrEmptyList
	}
	s.index = wrap(s.index+delta, len(images))
	state := s.stateLocked(images)
	s.mu.Unlock()

	s.changed(state)
	return state, nil
}

// SetInterval clamps d, stores it and, when open, restarts the ticker with
// the new period immediately. It returns the interval in effect.
func (s *Slideshow) SetInterval(d time.Duration) time.Duration {
	d = ClampInterval(d)
	images := s.images()

	s.mu.Lock()
	s.interval = d
	if s.status == Open {
		s.startTicker()
	}
	state := s.stateLocked(images)
	s.mu.Unlock()

	s.changed(state)
	return d
}

func (s *Slideshow) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// AttachAudio sets the audio played alongside the images. It starts playing
// right away and is independent of the image index. An empty ref detaches.
func (s *Slideshow) AttachAudio(ref string) {
	images := s.images()

	s.mu.Lock()
	s.audio = ref
	s.audioPlaying = ref != ""
	state := s.stateLocked(images)
	s.mu.Unlock()

	s.changed(state)
}

// ListChanged keeps the index valid after the gallery list is replaced:
// the index is clamped to the last image and an empty list closes the
// slideshow.
func (s *Slideshow) ListChanged(images []string) {
	s.mu.Lock()
	if s.status != Open {
		s.mu.Unlock()
		return
	}
	if len(images) == 0 {
		s.closeLocked()
		slog.Info("slideshow closed, gallery is empty")
	} else if s.index >= len(images) {
		s.index = len(images) - 1
	}
	state := s.stateLocked(images)
	s.mu.Unlock()

	s.changed(state)
}

func (s *Slideshow) State() State {
	images := s.images()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(images)
}

// startTicker replaces any running ticker. Caller holds mu.
func (s *Slideshow) startTicker() {
	s.stopTicker()
	t := s.newTicker(s.interval)
	stop := make(chan struct{})
	s.ticker = t
	s.stop = stop
	go s.run(t, stop)
}

// stopTicker caller holds mu.
func (s *Slideshow) stopTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.stop = nil
}

func (s *Slideshow) run(t Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.tick(stop)
		}
	}
}

func (s *Slideshow) tick(stop chan struct{}) {
	images := s.images()

	s.mu.Lock()
	// a tick from a replaced or stopped ticker
	if s.stop != stop || s.status != Open {
		s.mu.Unlock()
		return
	}
	if len(images) == 0 {
		s.closeLocked()
	} else {
		s.index = wrap(s.index+1, len(images))
	}
	state := s.stateLocked(images)
	s.mu.Unlock()

	s.changed(state)
}

func (s *Slideshow) stateLocked(images []string) State {
	state := State{
		Status:       s.status.String(),
		Index:        s.index,
		Total:        len(images),
		IntervalMs:   s.interval.Milliseconds(),
		Audio:        s.audio,
		AudioPlaying: s.audioPlaying,
	}
	if s.status == Open && s.index < len(images) {
		state.Current = images[s.index]
	}
	return state
}

func (s *Slideshow) changed(state State) {
	if s.onChange != nil {
		s.onChange(state)
	}
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}
