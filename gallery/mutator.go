package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Activity actions
const (
	ActionUpload = "upload"
	ActionDelete = "delete"
	ActionImport = "import"
)

// Notifier shows a message to the user who made the request carried by ctx.
type Notifier interface {
	Notify(ctx context.Context, kind, message string)
}

// ActivityRecorder keeps a log of mutation outcomes.
type ActivityRecorder interface {
	InsertActivity(action, ref string, success bool, message string) error
}

// Mutator uploads and deletes images. The local list is never edited
// directly: every success is followed by a refresh from the store.
type Mutator struct {
	store    Store
	sync     *Synchronizer
	activity ActivityRecorder
	notifier Notifier
}

// NewMutator builds a mutator; activity and notifier may be nil.
func NewMutator(store Store, sync *Synchronizer, activity ActivityRecorder, notifier Notifier) *Mutator {
	return &Mutator{
		store:    store,
		sync:     sync,
		activity: activity,
		notifier: notifier,
	}
}

// Upload sends file to the store and returns the new image URL. progress,
// when non nil, sees a non decreasing percentage.
func (m *Mutator) Upload(ctx context.Context, file *UploadFile, progress ProgressFunc) (string, error) {
	return m.upload(ctx, ActionUpload, file, progress)
}

// Import uploads a file found on local disk. It is recorded as an import
// rather than an upload.
func (m *Mutator) Import(ctx context.Context, file *UploadFile) (string, error) {
	return m.upload(ctx, ActionImport, file, nil)
}

func (m *Mutator) upload(ctx context.Context, action string, file *UploadFile, progress ProgressFunc) (string, error) {
	if file == nil || file.Body == nil {
		m.notify(ctx, NoticeError, ErrNoFile.Error())
		return "", ErrNoFile
	}

	last := -1
	report := func(percent int) {
		if progress == nil || percent <= last {
			return
		}
		last = percent
		progress(percent)
	}

	ref, err := m.store.Upload(ctx, file, report)
	if err != nil {
		msg := Outcome("Upload", err)
		m.record(action, file.Name, false, msg)
		m.notify(ctx, NoticeError, msg)
		slog.Warn("upload failed", "name", file.Name, "action", action, "error", err)
		return "", fmt.Errorf("upload %s: %w", file.Name, err)
	}
	report(100)

	msg := "Upload complete"
	if action == ActionImport {
		msg = "Imported " + file.Name
	}
	slog.Info("image uploaded", "name", file.Name, "ref", ref, "action", action)
	m.record(action, ref, true, msg)
	m.notify(ctx, NoticeInfo, msg)
	m.refresh(ctx)
	return ref, nil
}

// Delete removes ref from the store once confirm approves it.
func (m *Mutator) Delete(ctx context.Context, ref string, confirm ConfirmFunc) error {
	if confirm == nil || !confirm(ref) {
		return ErrNotConfirmed
	}

	filename := FilenameFromRef(m.store.BaseURL(), ref)
	if err := m.store.Delete(ctx, filename); err != nil {
		msg := Outcome("Delete", err)
		m.record(ActionDelete, ref, false, msg)
		m.notify(ctx, NoticeError, msg)
		slog.Warn("delete failed", "ref", ref, "filename", filename, "error", err)
		return fmt.Errorf("delete %s: %w", filename, err)
	}

	slog.Info("image deleted", "ref", ref, "filename", filename)
	m.record(ActionDelete, ref, true, "Deleted")
	m.notify(ctx, NoticeInfo, "Deleted")
	m.refresh(ctx)
	return nil
}

func (m *Mutator) refresh(ctx context.Context) {
	if m.sync == nil {
		return
	}
	if err := m.sync.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		slog.Warn("refresh after mutation failed", "error", err)
	}
}

func (m *Mutator) record(action, ref string, success bool, message string) {
	if m.activity == nil {
		return
	}
	if err := m.activity.InsertActivity(action, ref, success, message); err != nil {
		slog.Warn("unable to record activity", "action", action, "ref", ref, "error", err)
	}
}

func (m *Mutator) notify(ctx context.Context, kind, message string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, kind, message)
}
