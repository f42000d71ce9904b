// Package extract resolves a source reference out of an untyped webhook
// payload. The payload shape varies by sender, so resolution is a fixed
// precedence over an injectable key policy rather than a schema.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// Policy holds the key lists and the canonical media extension driving
// resolution precedence. The zero value is not usable; start from
// DefaultPolicy.
type Policy struct {
	// MediaExt is the canonical media file suffix, including the dot.
	MediaExt string

	// PriorityKeys are the well-known keys tried first, both at the top
	// level and inside nested mappings.
	PriorityKeys []string

	// ContainerKeys are the top-level keys searched recursively before
	// the whole payload is scanned as a last resort.
	ContainerKeys []string

	// SkipKeys name thumbnail/preview fields excluded from the
	// structural scans. A URL inside a skipped field is still found by
	// the final query-string pass.
	SkipKeys []string

	// IDKeys are tried in order for the job identifier.
	IDKeys []string

	// SessionKeys and GalleryKeys locate the vendor lookup identifiers.
	SessionKeys []string
	GalleryKeys []string
}

// DefaultPolicy returns the key precedence observed across senders.
func DefaultPolicy() Policy {
	return Policy{
		MediaExt:      ".mp4",
		PriorityKeys:  []string{"media_url", "url", "file", "mp4", "video", "source", "original"},
		ContainerKeys: []string{"data", "files", "media", "assets"},
		SkipKeys:      []string{"thumbnail", "thumbnail_url", "thumb", "preview", "preview_url", "poster", "image", "image_url"},
		IDKeys:        []string{"id", "media_id", "session_id", "uid", "filename"},
		SessionKeys:   []string{"session_id"},
		GalleryKeys:   []string{"gallery_id"},
	}
}

// Extractor applies a Policy to payloads. It is pure and safe for
// concurrent use.
type Extractor struct {
	policy   Policy
	mediaRe  *regexp.Regexp
	queryRe  *regexp.Regexp
	skipKeys map[string]struct{}
}

// New builds an Extractor for the given policy.
func New(policy Policy) *Extractor {
	ext := regexp.QuoteMeta(strings.TrimPrefix(policy.MediaExt, "."))
	skip := make(map[string]struct{}, len(policy.SkipKeys))
	for _, k := range policy.SkipKeys {
		skip[k] = struct{}{}
	}
	return &Extractor{
		policy:   policy,
		mediaRe:  regexp.MustCompile(`(?i)https?://[^\s"']+\.` + ext + `(?:\?[^\s"']*)?`),
		queryRe:  regexp.MustCompile(`(?i)https?://[^\s"']+\.` + ext + `\?[^\s"']*`),
		skipKeys: skip,
	}
}

// Extract resolves zero or one source reference from the payload. The
// precedence is: well-known top-level key with the media extension
// (direct), well-known top-level key without it (landing page),
// recursive search of the container keys, recursive search of the whole
// payload, then a query-string-only pass that ignores the skip list.
// With no URL anywhere, a reference classified for vendor lookup is
// returned when a session identifier is present.
func (e *Extractor) Extract(payload map[string]any) (videostamp.SourceReference, bool) {
	sessionID := e.firstString(payload, e.policy.SessionKeys)
	galleryID := e.firstString(payload, e.policy.GalleryKeys)

	for _, key := range e.policy.PriorityKeys {
		if s, ok := stringValue(payload[key]); ok && e.hasMediaExt(s) {
			return videostamp.SourceReference{
				URL:       s,
				Kind:      videostamp.SourceKindDirect,
				SessionID: sessionID,
				GalleryID: galleryID,
			}, true
		}
	}

	for _, key := range e.policy.PriorityKeys {
		if s, ok := stringValue(payload[key]); ok && s != "" {
			return videostamp.SourceReference{
				URL:       s,
				Kind:      videostamp.SourceKindPage,
				SessionID: sessionID,
				GalleryID: galleryID,
			}, true
		}
	}

	for _, key := range e.policy.ContainerKeys {
		if v, ok := payload[key]; ok {
			if url, found := e.scan(v, e.mediaRe, true); found {
				return videostamp.SourceReference{
					URL:       url,
					Kind:      videostamp.SourceKindDirect,
					SessionID: sessionID,
					GalleryID: galleryID,
				}, true
			}
		}
	}

	if url, found := e.scan(payload, e.mediaRe, true); found {
		return videostamp.SourceReference{
			URL:       url,
			Kind:      videostamp.SourceKindDirect,
			SessionID: sessionID,
			GalleryID: galleryID,
		}, true
	}

	// Skipped fields get one last chance, but only for URLs carrying a
	// query string.
	if url, found := e.scan(payload, e.queryRe, false); found {
		return videostamp.SourceReference{
			URL:       url,
			Kind:      videostamp.SourceKindDirect,
			SessionID: sessionID,
			GalleryID: galleryID,
		}, true
	}

	if sessionID != "" {
		return videostamp.SourceReference{
			Kind:      videostamp.SourceKindVendorLookup,
			SessionID: sessionID,
			GalleryID: galleryID,
		}, true
	}

	return videostamp.SourceReference{}, false
}

// identifierRe strips everything outside the filename-safe set. The
// identifier lands in filesystem paths and object keys, and the payload
// is untrusted.
var identifierRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Identifier picks the job identifier from the first present, non-empty
// id key, falling back to a timestamp with a short uniqueness suffix so
// two concurrent fallback jobs never share a storage key. The payload
// value is sanitized to the filename-safe set; a value with nothing
// usable left gets the generated fallback instead.
func (e *Extractor) Identifier(payload map[string]any) string {
	for _, key := range e.policy.IDKeys {
		if v, ok := payload[key]; ok {
			if s := sanitizeIdentifier(scalarString(v)); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("%d-%s", time.Now().UTC().Unix(), uuid.NewString()[:8])
}

// sanitizeIdentifier reduces a payload value to characters safe in a
// path segment. Surrounding dots are dropped so no identifier can name
// a parent directory or a hidden file.
func sanitizeIdentifier(raw string) string {
	s := identifierRe.ReplaceAllString(strings.TrimSpace(raw), "")
	s = strings.Trim(s, ".")
	if strings.Trim(s, "._-") == "" {
		return ""
	}
	return s
}

// scan walks the value depth-first. Within a mapping the priority keys
// are tried first, then the remaining keys in sorted order; sequence
// elements are scanned in order. honorSkip excludes the skip-key fields
// from the walk.
func (e *Extractor) scan(node any, re *regexp.Regexp, honorSkip bool) (string, bool) {
	switch v := node.(type) {
	case string:
		if m := re.FindString(v); m != "" {
			return m, true
		}
	case map[string]any:
		seen := make(map[string]struct{}, len(e.policy.PriorityKeys))
		for _, key := range e.policy.PriorityKeys {
			seen[key] = struct{}{}
			if child, ok := v[key]; ok {
				if url, found := e.scan(child, re, honorSkip); found {
					return url, true
				}
			}
		}
		rest := make([]string, 0, len(v))
		for key := range v {
			if _, ok := seen[key]; ok {
				continue
			}
			if honorSkip {
				if _, skip := e.skipKeys[key]; skip {
					continue
				}
			}
			rest = append(rest, key)
		}
		sort.Strings(rest)
		for _, key := range rest {
			if url, found := e.scan(v[key], re, honorSkip); found {
				return url, true
			}
		}
	case []any:
		for _, child := range v {
			if url, found := e.scan(child, re, honorSkip); found {
				return url, true
			}
		}
	}
	return "", false
}

func (e *Extractor) hasMediaExt(s string) bool {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(e.policy.MediaExt))
}

func (e *Extractor) firstString(payload map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			if s := strings.TrimSpace(scalarString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// stringValue unwraps a scalar string, including the single-element
// sequences produced by form decoding.
func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []any:
		if len(s) == 1 {
			return stringValue(s[0])
		}
	}
	return "", false
}

// scalarString renders scalar identifier values the way senders write
// them, numbers included.
func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case bool:
		return fmt.Sprintf("%t", s)
	case []any:
		if len(s) == 1 {
			return scalarString(s[0])
		}
	}
	return ""
}
