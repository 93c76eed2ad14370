package gallery

import (
	"context"
	"io"
	"slices"
	"sync"
)

// fakeStore is an in-memory remote store keyed by server relative path.
type fakeStore struct {
	base string

	mu        sync.Mutex
	paths     []string
	listErr   error
	uploadErr error
	deleteErr error
	deleted   []string
	// gates, when set, hold one channel per List call in call order; the
	// call answers with whatever paths are sent on its channel
	gates []chan []string
	calls int
}

func newFakeStore(paths ...string) *fakeStore {
	return &fakeStore{base: "http://store.test", paths: paths}
}

func (f *fakeStore) BaseURL() string { return f.base }

func (f *fakeStore) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	var gate chan []string
	if f.calls < len(f.gates) {
		gate = f.gates[f.calls]
	}
	f.calls++
	f.mu.Unlock()

	var paths []string
	if gate != nil {
		select {
		case paths = <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		f.mu.Lock()
		if f.listErr != nil {
			err := f.listErr
			f.mu.Unlock()
			return nil, err
		}
		paths = slices.Clone(f.paths)
		f.mu.Unlock()
	}

	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = f.base + p
	}
	return out, nil
}

func (f *fakeStore) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) Upload(ctx context.Context, file *UploadFile, progress ProgressFunc) (string, error) {
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return "", err
	}
	total := int64(len(data))
	for _, loaded := range []int64{total / 4, total / 2, total / 2, total} {
		progress(Percent(loaded, total))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	p := "/uploads/" + file.Name
	f.paths = append([]string{p}, f.paths...)
	return f.base + p, nil
}

func (f *fakeStore) Delete(ctx context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, filename)
	f.paths = slices.DeleteFunc(f.paths, func(p string) bool { return p == filename })
	return nil
}

type recordedNotice struct {
	kind    string
	message string
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (n *fakeNotifier) Notify(ctx context.Context, kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, recordedNotice{kind: kind, message: message})
}

func (n *fakeNotifier) last() recordedNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return recordedNotice{}
	}
	return n.notices[len(n.notices)-1]
}

type activityRow struct {
	action  string
	ref     string
	success bool
	message string
}

type fakeActivity struct {
	rows []activityRow
}

func (a *fakeActivity) InsertActivity(action, ref string, success bool, message string) error {
	a.rows = append(a.rows, activityRow{action, ref, success, message})
	return nil
}
