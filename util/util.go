// Package util is a set of utility variables or methods
package util

import (
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var SupportedExt = mapset.NewSet(
	".jpeg", ".jpg", ".JPEG", ".JPG",
	".png", ".PNG",
	".gif", ".GIF",
	".webp", ".WEBP",
)

var SupportedAudioExt = mapset.NewSet(
	".mp3", ".MP3",
	".ogg", ".OGG",
	".wav", ".WAV",
	".m4a", ".M4A",
)

// IsImage reports whether the name, a file name or URL, carries a supported image extension.
func IsImage(name string) bool {
	return SupportedExt.Contains(path.Ext(stripQuery(name)))
}

// IsAudio reports whether the name carries a supported audio extension.
func IsAudio(name string) bool {
	return SupportedAudioExt.Contains(path.Ext(stripQuery(name)))
}

// BaseName returns the last path element of a URL or path, as shown under a gallery tile.
func BaseName(ref string) string {
	ref = stripQuery(ref)
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
