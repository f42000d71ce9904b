// Package urlstrategy selects the caller-usable URL for a published
// artifact. The precedence is fixed: public ACL URL, then presigned
// URL, then the bare storage URI. Callers depend on presigned URLs
// never being handed out while public URLs are in effect, so a signed
// link cannot outlive the object's own accessibility window.
package urlstrategy

import (
	"context"
	"time"

	"github.com/stampworks/video-stamp/pkg/videostamp"
)

// Precedence applies the fixed policy order from the access
// configuration. It satisfies videostamp.URLStrategy.
type Precedence struct {
	publicACL  bool
	presignTTL time.Duration
}

// New builds the precedence strategy. publicACL wins over any presign
// configuration; a zero presignTTL disables presigning.
func New(publicACL bool, presignTTL time.Duration) *Precedence {
	return &Precedence{publicACL: publicACL, presignTTL: presignTTL}
}

// ArtifactURL applies the precedence. The order is fixed and must not
// be reordered.
func (p *Precedence) ArtifactURL(ctx context.Context, store videostamp.BlobStore, objectKey string) (string, videostamp.URLKind, error) {
	if p.publicACL {
		url, err := store.PublicURL(objectKey)
		return url, videostamp.URLKindPublic, err
	}
	if p.presignTTL > 0 {
		url, err := store.PresignDownloadURL(ctx, objectKey, p.presignTTL)
		return url, videostamp.URLKindPresigned, err
	}
	return store.URI(objectKey), videostamp.URLKindRawURI, nil
}

// PublicRead reports whether uploads must be publicly readable.
func (p *Precedence) PublicRead() bool {
	return p.publicACL
}
