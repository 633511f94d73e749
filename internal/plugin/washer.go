package plugin

import (
	"github.com/microcosm-cc/bluemonday"

	"github.com/isometry/identity-from-directory/internal/identity"
)

// NewHTMLWasher returns the sanitizer applied to HTML signatures. It keeps
// user-generated-content markup, basic inline text styling and tel: links,
// and strips scripts, event handlers and other active content.
func NewHTMLWasher() identity.Washer {
	p := bluemonday.UGCPolicy()
	p.AllowURLSchemes("mailto", "http", "https", "tel")
	p.AllowStyles("color", "font-family", "font-size", "font-style", "font-weight", "text-decoration").Globally()
	return identity.WasherFunc(p.Sanitize)
}
