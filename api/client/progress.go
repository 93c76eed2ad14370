package client

import (
	"io"
	"sync"

	"github.com/aouyang1/portfoliogallery/gallery"
)

// progressReader reports how much of an upload body has been read, only
// when the whole percentage moves forward.
type progressReader struct {
	r        io.Reader
	total    int64
	progress gallery.ProgressFunc

	mu     sync.Mutex
	loaded int64
	last   int
}

func newProgressReader(r io.Reader, total int64, progress gallery.ProgressFunc) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{r: r, total: total, progress: progress, last: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)

	p.mu.Lock()
	p.loaded += int64(n)
	percent := gallery.Percent(p.loaded, p.total)
	report := percent > p.last
	if report {
		p.last = percent
	}
	p.mu.Unlock()

	if report {
		p.progress(percent)
	}
	return n, err
}
