// Package gallery keeps the image list served by the remote store in sync,
// filters it for display, and applies admin uploads and deletes.
//
// An image is identified by its full URL (remote base + server relative path).
// The list order is whatever the remote store returns.
package gallery

import (
	"context"
	"io"
	"strings"
)

// Store is the remote image store the gallery reads from and mutates.
type Store interface {
	// BaseURL is the prefix prepended to every server relative path.
	BaseURL() string
	// List returns full image URLs in server order.
	List(ctx context.Context) ([]string, error)
	// Upload sends the file and returns the full URL of the stored image.
	Upload(ctx context.Context, file *UploadFile, progress ProgressFunc) (string, error)
	// Delete removes the image stored under the server relative filename.
	Delete(ctx context.Context, filename string) error
}

// UploadFile is a file chosen for upload. Size is -1 when unknown.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ProgressFunc receives upload progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

// ConfirmFunc asks the user to confirm a destructive action on ref.
type ConfirmFunc func(ref string) bool

// State is a point in time view of the synchronized list.
type State struct {
	Images  []string `json:"images"`
	Loading bool     `json:"loading"`
}

// FilenameFromRef strips the remote base from a full image URL, leaving the
// server relative filename the store expects on delete.
func FilenameFromRef(baseURL, ref string) string {
	return strings.TrimPrefix(ref, baseURL)
}

// Percent converts a loaded/total byte count into a whole percentage.
// An unknown or empty total reports 0.
func Percent(loaded, total int64) int {
	if total <= 0 {
		return 0
	}
	if loaded >= total {
		return 100
	}
	return int(loaded * 100 / total)
}
