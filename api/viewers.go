package api

import (
	"sync"

	"github.com/aouyang1/portfoliogallery/slideshow"
)

// viewers holds one slideshow per browser session.
type viewers struct {
	build func(token string) *slideshow.Slideshow

	mu      sync.Mutex
	byToken map[string]*slideshow.Slideshow
}

func newViewers(build func(token string) *slideshow.Slideshow) *viewers {
	return &viewers{
		build:   build,
		byToken: make(map[string]*slideshow.Slideshow),
	}
}

// get returns the slideshow of token, creating a closed one on first use.
func (v *viewers) get(token string) *slideshow.Slideshow {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.byToken[token]
	if !ok {
		s = v.build(token)
		v.byToken[token] = s
	}
	return s
}

// remove stops and forgets the slideshow of token.
func (v *viewers) remove(token string) {
	v.mu.Lock()
	s, ok := v.byToken[token]
	delete(v.byToken, token)
	v.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (v *viewers) snapshot() []*slideshow.Slideshow {
	v.mu.Lock()
	defer v.mu.Unlock()
	all := make([]*slideshow.Slideshow, 0, len(v.byToken))
	for _, s := range v.byToken {
		all = append(all, s)
	}
	return all
}

func (v *viewers) listChanged(images []string) {
	for _, s := range v.snapshot() {
		s.ListChanged(images)
	}
}

func (v *viewers) closeAll() {
	for _, s := range v.snapshot() {
		s.Close()
	}
}

func (v *viewers) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byToken)
}
