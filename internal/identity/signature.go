package identity

import (
	"html"
	"net/url"
	"sort"
	"strings"
)

// Washer sanitizes rendered HTML before it is stored with an identity.
type Washer interface {
	Wash(html string) string
}

// WasherFunc adapts a plain function to Washer.
type WasherFunc func(string) string

func (f WasherFunc) Wash(s string) string { return f(s) }

// Placeholder suffixes. A key "phone" is addressable as %phone%,
// %phone_html% and %phone_url%.
const (
	suffixHTML = "_html"
	suffixURL  = "_url"
)

// SignatureRenderer expands %key% placeholders of a signature template with
// user data. Keys are the fieldmap keys of the directory configuration.
type SignatureRenderer struct {
	Keys     []string
	Fallback map[string]string

	PlainTemplate string
	HTMLTemplate  string
	UseHTML       bool
	WashHTML      bool
	Washer        Washer
}

// NewSignatureRenderer returns a renderer for the given fieldmap. Only the
// fieldmap keys matter; their directory attribute names are not used.
func NewSignatureRenderer(fieldmap map[string]string, fallback map[string]string) *SignatureRenderer {
	keys := make([]string, 0, len(fieldmap))
	for k := range fieldmap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &SignatureRenderer{Keys: keys, Fallback: fallback}
}

// Template returns the template selected by UseHTML.
func (r *SignatureRenderer) Template() string {
	if r.UseHTML {
		return r.HTMLTemplate
	}
	return r.PlainTemplate
}

// Render produces the signature for the identity with the given target email.
// rec is the identity record under construction and is consulted last.
func (r *SignatureRenderer) Render(user *UserData, email string, rec IdentityRecord) string {
	out := r.Expand(r.Template(), user, email, rec)
	if r.UseHTML && r.WashHTML && r.Washer != nil {
		out = r.Washer.Wash(out)
	}
	return out
}

// Expand substitutes every resolvable placeholder of tmpl in a single pass.
// Placeholders whose key has no value anywhere are left as they are.
func (r *SignatureRenderer) Expand(tmpl string, user *UserData, email string, rec IdentityRecord) string {
	var pairs []string
	for _, key := range r.Keys {
		value, ok := r.resolve(key, user, email, rec)
		if !ok {
			continue
		}
		pairs = append(pairs,
			"%"+key+"%", value,
			"%"+key+suffixHTML+"%", html.EscapeString(value),
			"%"+key+suffixURL+"%", urlValue(key, value),
		)
	}
	if len(pairs) == 0 {
		return tmpl
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func (r *SignatureRenderer) resolve(key string, user *UserData, email string, rec IdentityRecord) (string, bool) {
	if strings.EqualFold(key, FamilyEmail) {
		return email, email != ""
	}
	if v := user.Field(key); v != "" {
		return v, true
	}
	if v := r.Fallback[key]; v != "" {
		return v, true
	}
	if v := rec.Field(key); v != "" {
		return v, true
	}
	return "", false
}

// urlValue encodes a value for use inside a URL. Phone numbers keep only
// digits and a leading '+' for tel: links; addresses use their ASCII form
// for mailto: links.
func urlValue(key, value string) string {
	switch strings.ToLower(key) {
	case "phone", "fax":
		value = dialable(value)
	case FamilyEmail:
		value = ToASCII(value)
	}
	return url.QueryEscape(value)
}

func dialable(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '+' && b.Len() == 0:
			b.WriteRune(c)
		}
	}
	return b.String()
}
