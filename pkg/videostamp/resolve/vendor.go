package resolve

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

const maxLookupBytes = 4 << 20

// urlFields are the mapping keys that may carry a download URL, in
// precedence order.
var urlFields = []string{"url", "href", "download_url"}

// typeFields are the mapping keys that may carry a media-type marker.
var typeFields = []string{"type", "media_type", "mime_type", "content_type", "mime"}

// VendorConfig options for the vendor asset lookup.
type VendorConfig struct {
	Client *http.Client

	// EndpointTemplate is the lookup URL with {session_id} and
	// {gallery_id} placeholders.
	EndpointTemplate string

	// AuthHeader is the header carrying the credential. "Authorization"
	// sends "Bearer <token>"; any other header sends the token verbatim.
	AuthHeader string
	Token      string

	MediaExt  string // default ".mp4"
	MediaType string // default "video/mp4"
	UserAgent string
}

// Vendor queries the configured asset API and walks the response for a
// media URL. Used only when extraction and page resolution both fail.
type Vendor struct {
	client    *http.Client
	template  string
	header    string
	token     string
	mediaExt  string
	mediaType string
	userAgent string
	mediaRe   *regexp.Regexp
}

// NewVendor builds a vendor lookup client.
func NewVendor(cfg VendorConfig) *Vendor {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.MediaExt == "" {
		cfg.MediaExt = ".mp4"
	}
	if cfg.MediaType == "" {
		cfg.MediaType = "video/mp4"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Vendor{
		client:    cfg.Client,
		template:  cfg.EndpointTemplate,
		header:    cfg.AuthHeader,
		token:     cfg.Token,
		mediaExt:  cfg.MediaExt,
		mediaType: cfg.MediaType,
		userAgent: cfg.UserAgent,
		mediaRe:   mediaURLPattern(cfg.MediaExt),
	}
}

// Configured reports whether both an endpoint template and a credential
// are present.
func (v *Vendor) Configured() bool {
	return v.template != "" && v.token != ""
}

// Lookup substitutes the identifiers into the endpoint template, issues
// an authenticated GET, and walks the decoded JSON for a mapping that
// carries both a URL field and a media-type marker. When decoding fails
// or no such mapping exists, the raw body gets a regex sweep. All
// failures yield "not found".
func (v *Vendor) Lookup(ctx context.Context, sessionID, galleryID string) (string, bool) {
	if !v.Configured() || sessionID == "" {
		return "", false
	}

	endpoint := strings.NewReplacer(
		"{session_id}", url.PathEscape(sessionID),
		"{gallery_id}", url.PathEscape(galleryID),
	).Replace(v.template)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", v.userAgent)
	if strings.EqualFold(v.header, "Authorization") {
		req.Header.Set(v.header, "Bearer "+v.token)
	} else {
		req.Header.Set(v.header, v.token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBytes))
	if err != nil {
		return "", false
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		if found, ok := v.walk(decoded); ok {
			return found, true
		}
	}

	if m := v.mediaRe.Find(body); m != nil {
		return string(m), true
	}
	return "", false
}

// walk searches depth-first, visiting mappings before sequences. A
// mapping matches when one of its URL fields holds an absolute http(s)
// URL and either a type field names the media type or the URL itself
// carries the media extension.
func (v *Vendor) walk(node any) (string, bool) {
	switch n := node.(type) {
	case map[string]any:
		if found, ok := v.matchMapping(n); ok {
			return found, true
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, group := range []func(any) bool{isMapping, isSequence} {
			for _, k := range keys {
				if !group(n[k]) {
					continue
				}
				if found, ok := v.walk(n[k]); ok {
					return found, true
				}
			}
		}
	case []any:
		for _, child := range n {
			if found, ok := v.walk(child); ok {
				return found, true
			}
		}
	}
	return "", false
}

func (v *Vendor) matchMapping(m map[string]any) (string, bool) {
	var candidate string
	for _, field := range urlFields {
		if s, ok := m[field].(string); ok && isHTTPURL(s) {
			candidate = s
			break
		}
	}
	if candidate == "" {
		return "", false
	}
	for _, field := range typeFields {
		if s, ok := m[field].(string); ok && strings.Contains(strings.ToLower(s), strings.ToLower(v.mediaType)) {
			return candidate, true
		}
	}
	if hasMediaExt(candidate, v.mediaExt) {
		return candidate, true
	}
	return "", false
}

func isMapping(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func isSequence(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
