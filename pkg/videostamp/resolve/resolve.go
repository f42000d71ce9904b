// Package resolve turns indirect source references (HTML landing pages,
// vendor asset APIs) into direct media URLs. Every failure in this
// package degrades to "not found"; nothing here is fatal to a job.
package resolve

import (
	"regexp"
	"strings"
)

// DefaultUserAgent identifies outbound scraping requests.
const DefaultUserAgent = "video-stamp/1.0"

// mediaURLPattern matches an absolute http(s) URL ending in the media
// extension, optionally followed by a query string.
func mediaURLPattern(ext string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(strings.TrimPrefix(ext, "."))
	return regexp.MustCompile(`(?i)https?://[^\s"']+\.` + quoted + `(?:\?[^\s"']*)?`)
}

// hasMediaExt reports whether the URL path ends in the media extension,
// ignoring any trailing query string.
func hasMediaExt(rawURL, ext string) bool {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return strings.HasSuffix(strings.ToLower(rawURL), strings.ToLower(ext))
}
