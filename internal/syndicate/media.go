package syndicate

import (
	"path"
	"strings"
)

// MediaKind classifies a media locator as an image or a video.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaRef locates one piece of media: either a public http(s) URL or a
// local filesystem path. Providers that require one form must reject the
// other as a validation error instead of attempting an upload.
type MediaRef string

func (m MediaRef) String() string { return string(m) }

// IsURL reports whether the locator is a public http(s) URL.
func (m MediaRef) IsURL() bool {
	s := strings.ToLower(strings.TrimSpace(string(m)))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".m4v":  {},
	".webm": {},
	".avi":  {},
	".mkv":  {},
}

// Kind infers the media kind from the locator's file extension,
// defaulting to image when the extension is unknown or absent.
func (m MediaRef) Kind() MediaKind {
	ref := strings.TrimSpace(string(m))
	if m.IsURL() {
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			ref = ref[:i]
		}
	}
	ext := strings.ToLower(path.Ext(ref))
	if _, ok := videoExtensions[ext]; ok {
		return MediaVideo
	}
	return MediaImage
}
