package identity

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// splitAddress splits an address at its last '@'. ok is false when there is
// no '@' at all.
func splitAddress(email string) (local, domain string, ok bool) {
	i := strings.LastIndexByte(email, '@')
	if i < 0 {
		return email, "", false
	}
	return email[:i], email[i+1:], true
}

// ToUnicode trims the address and converts its domain to the readable
// Unicode form (xn--bcher-kva.example -> bücher.example). The local part is
// left untouched. Domains that fail to decode are kept as given.
func ToUnicode(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := splitAddress(email)
	if !ok {
		return email
	}
	if u, err := idna.ToUnicode(domain); err == nil {
		domain = u
	}
	return local + "@" + domain
}

// ToASCII trims the address and converts its domain to the Punycode form
// used on the wire and in mailto: URLs.
func ToASCII(email string) string {
	email = strings.TrimSpace(email)
	local, domain, ok := splitAddress(email)
	if !ok {
		return email
	}
	if a, err := idna.ToASCII(domain); err == nil {
		domain = a
	}
	return local + "@" + domain
}

// Canonical returns the comparison key for an address: trimmed, domain in
// Unicode form, lower-cased as a whole. Lower-casing is not full case
// folding: straße.de and strasse.de stay distinct. Canonical(Canonical(x))
// == Canonical(x).
func Canonical(email string) string {
	lower := cases.Lower(language.Und)
	email = strings.TrimSpace(email)
	local, domain, ok := splitAddress(email)
	if !ok {
		return lower.String(email)
	}
	// lower before decoding so upper-case "XN--" labels are recognised
	domain = lower.String(domain)
	if u, err := idna.ToUnicode(domain); err == nil {
		domain = u
	}
	return lower.String(local + "@" + domain)
}

// EqualEmails reports whether a and b denote the same mailbox under
// case- and IDN-insensitive comparison.
func EqualEmails(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// ContainsEmail reports whether set holds an address equal to x.
func ContainsEmail(set []string, x string) bool {
	return IndexEmail(set, x) >= 0
}

// IndexEmail returns the index of the first address in set equal to x, or -1.
func IndexEmail(set []string, x string) int {
	key := Canonical(x)
	for i, e := range set {
		if Canonical(e) == key {
			return i
		}
	}
	return -1
}

// DedupeEmails removes addresses equal to an earlier one, preserving the
// first-seen spelling and order.
func DedupeEmails(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, e := range list {
		key := Canonical(e)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
