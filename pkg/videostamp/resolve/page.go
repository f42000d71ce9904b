package resolve

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// pages larger than this are truncated before scanning
const maxPageBytes = 8 << 20

// PageConfig options for the landing-page resolver.
type PageConfig struct {
	Client      *http.Client
	UserAgent   string
	MediaExt    string        // canonical media suffix, default ".mp4"
	StripSuffix string        // trailing path segment retried without, default "/download"
	MaxAttempts int           // default 3
	Backoff     time.Duration // fixed sleep between attempts
}

// Page fetches a landing page and scrapes a direct media URL out of its
// markup. Safe for concurrent use.
type Page struct {
	client      *http.Client
	userAgent   string
	mediaExt    string
	stripSuffix string
	maxAttempts int
	backoff     time.Duration
	mediaRe     *regexp.Regexp
}

// NewPage builds a landing-page resolver.
func NewPage(cfg PageConfig) *Page {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MediaExt == "" {
		cfg.MediaExt = ".mp4"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Page{
		client:      cfg.Client,
		userAgent:   cfg.UserAgent,
		mediaExt:    cfg.MediaExt,
		stripSuffix: cfg.StripSuffix,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		mediaRe:     mediaURLPattern(cfg.MediaExt),
	}
}

// Resolve fetches pageURL and scans it for a direct media URL. When the
// page yields nothing and its path ends in the configured suffix, the
// suffix-stripped URL is tried in the same pass. The whole sequence is
// retried up to the attempt limit with a fixed sleep in between; HTTP
// errors count as failed attempts.
func (p *Page) Resolve(ctx context.Context, pageURL string) (string, bool) {
	candidates := []string{pageURL}
	if stripped := p.stripKnownSuffix(pageURL); stripped != "" {
		candidates = append(candidates, stripped)
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		for _, candidate := range candidates {
			if direct, ok := p.attempt(ctx, candidate); ok {
				return direct, true
			}
		}
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(p.backoff):
		}
	}
	return "", false
}

func (p *Page) attempt(ctx context.Context, pageURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	// Redirects may land directly on the media file.
	final := resp.Request.URL
	if hasMediaExt(final.String(), p.mediaExt) {
		return final.String(), true
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", false
	}
	return p.scanMarkup(body, final)
}

// scanMarkup applies the extraction order: video/source src attributes,
// anchor targets, the og:video meta tag, then a raw regex sweep of the
// body text.
func (p *Page) scanMarkup(body []byte, base *url.URL) (string, bool) {
	var sources, anchors, ogVideos []string

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err == nil {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode {
				switch n.Data {
				case "source", "video":
					if src := attrValue(n, "src"); src != "" {
						sources = append(sources, src)
					}
				case "a":
					if href := attrValue(n, "href"); href != "" {
						anchors = append(anchors, href)
					}
				case "meta":
					prop := attrValue(n, "property")
					if prop == "" {
						prop = attrValue(n, "name")
					}
					if prop == "og:video" || prop == "og:video:url" || prop == "og:video:secure_url" {
						if content := attrValue(n, "content"); content != "" {
							ogVideos = append(ogVideos, content)
						}
					}
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(doc)
	}

	for _, src := range sources {
		if resolved := resolveRef(base, src); resolved != "" && hasMediaExt(resolved, p.mediaExt) {
			return resolved, true
		}
	}
	for _, href := range anchors {
		if resolved := resolveRef(base, href); resolved != "" && hasMediaExt(resolved, p.mediaExt) {
			return resolved, true
		}
	}
	for _, content := range ogVideos {
		if resolved := resolveRef(base, content); resolved != "" {
			return resolved, true
		}
	}
	if m := p.mediaRe.Find(body); m != nil {
		return string(m), true
	}
	return "", false
}

func (p *Page) stripKnownSuffix(pageURL string) string {
	if p.stripSuffix == "" {
		return ""
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	if !strings.HasSuffix(u.Path, p.stripSuffix) {
		return ""
	}
	u.Path = strings.TrimSuffix(u.Path, p.stripSuffix)
	return u.String()
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolveRef(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}
