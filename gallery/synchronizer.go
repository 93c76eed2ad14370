package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const refreshTimeout = 30 * time.Second

// Synchronizer holds the latest image list fetched from the store.
//
// Every Refresh takes a new generation number. A response is applied only if
// its generation is still the newest issued, so overlapping refreshes can
// never leave an older list in place of a newer one.
type Synchronizer struct {
	store Store

	mu         sync.RWMutex
	images     []string
	inFlight   int
	generation uint64

	listenersMu sync.Mutex
	listeners   []func(images []string)
}

func NewSynchronizer(store Store) *Synchronizer {
	return &Synchronizer{store: store}
}

// OnChange registers fn to be called with a copy of the list after every
// applied refresh.
func (s *Synchronizer) OnChange(fn func(images []string)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Images returns a copy of the current list.
func (s *Synchronizer) Images() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.images))
	copy(out, s.images)
	return out
}

func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight > 0
}

func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	images := make([]string, len(s.images))
	copy(images, s.images)
	return State{Images: images, Loading: s.inFlight > 0}
}

// Refresh fetches the list from the store and replaces the held list. On
// failure the previous list is kept. Returns ErrSuperseded when a newer
// refresh was issued while this one was in flight.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.inFlight++
	s.mu.Unlock()

	images, err := s.store.List(ctx)

	s.mu.Lock()
	s.inFlight--
	if err != nil {
		s.mu.Unlock()
		slog.Warn("could not fetch image list", "generation", gen, "error", err)
		return fmt.Errorf("refresh image list: %w", err)
	}
	if gen != s.generation {
		latest := s.generation
		s.mu.Unlock()
		slog.Debug("dropping stale image list", "generation", gen, "latest", latest)
		return ErrSuperseded
	}

	previous := mapset.NewSet(s.images...)
	if images == nil {
		images = []string{}
	}
	s.images = images
	applied := make([]string, len(images))
	copy(applied, images)
	s.mu.Unlock()

	current := mapset.NewSet(applied...)
	added := current.Difference(previous)
	removed := previous.Difference(current)
	if added.Cardinality() > 0 || removed.Cardinality() > 0 {
		slog.Info("image list changed", "total", len(applied), "added", added.Cardinality(), "removed", removed.Cardinality())
	}

	s.listenersMu.Lock()
	listeners := make([]func([]string), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(applied)
	}
	return nil
}

// Run refreshes once immediately and then every interval until ctx is done.
// A non-positive interval refreshes once and returns.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	s.refreshWithTimeout(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshWithTimeout(ctx)
		}
	}
}

func (s *Synchronizer) refreshWithTimeout(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	// failures are already logged by Refresh
	_ = s.Refresh(ctx)
}
