package identity

import (
	"errors"
	"regexp"
	"strings"
)

// ErrAmbiguousMatch is reported when a directory search for a login returns
// more than one record. No identity is derived from an ambiguous match.
var ErrAmbiguousMatch = errors.New("directory search returned more than one record")

// UserData is the per-login view of a directory record. It is built fresh
// for every login and discarded once reconciliation completes.
type UserData struct {
	Name         string
	PrimaryEmail string
	Emails       []string

	// Extra holds the remaining directory fields (organization, phone, ...)
	// keyed by lower-cased fieldmap name.
	Extra map[string]string
}

// Field returns the user's value for a fieldmap key.
func (u *UserData) Field(key string) string {
	if u == nil {
		return ""
	}
	switch strings.ToLower(key) {
	case FamilyName:
		return u.Name
	case FamilyEmail:
		return u.PrimaryEmail
	}
	return u.Extra[strings.ToLower(key)]
}

// ExtractOptions controls how ExtractUserData reads a record.
type ExtractOptions struct {
	HandleProxyAddresses bool
}

// ExtractUserData builds the name, primary address and extra fields of a
// user from a directory record. Malformed or missing values are treated as
// absent; extraction never fails.
func ExtractUserData(rec Record, opts ExtractOptions) *UserData {
	u := &UserData{Extra: make(map[string]string)}

	if v, ok := rec.Get(FamilyName); ok {
		u.Name = strings.TrimSpace(First(v))
	}
	if v, ok := rec.Get(FamilyEmail); ok {
		primary := strings.TrimSpace(First(v))
		if strings.Contains(primary, "@") {
			u.PrimaryEmail = ToUnicode(primary)
		}
	}

	for _, a := range rec.Attributes {
		family := KeyFamily(a.Name)
		if family == FamilyEmail || (opts.HandleProxyAddresses && family == FamilyProxyAddresses) {
			continue
		}
		if strings.HasPrefix(a.Name, ReservedPrefix) {
			continue
		}
		key := strings.ToLower(a.Name)
		if key == FamilyName {
			continue
		}
		if _, exists := u.Extra[key]; exists {
			continue
		}
		u.Extra[key] = First(a.Value)
	}

	return u
}

// RejectReason says why a candidate alias was not accepted.
type RejectReason string

const (
	RejectInvalid  RejectReason = "invalid address"
	RejectExcluded RejectReason = "excluded by pattern"
)

// RejectionSink receives candidates the collector dropped. A nil sink
// discards them.
type RejectionSink func(candidate string, reason RejectReason)

// CollectOptions controls how CollectEmails gathers aliases.
type CollectOptions struct {
	HandleProxyAddresses bool
	ExcludeAlias         *regexp.Regexp
	OnReject             RejectionSink
}

// CollectEmails derives the deduplicated list of addresses for a user:
// primary first, then every "email" family value, then (optionally) the
// smtp entries of "proxyaddresses".
func CollectEmails(rec Record, primary string, opts CollectOptions) []string {
	var list []string
	if primary != "" {
		list = append(list, primary)
	}

	add := func(candidate string) {
		candidate = ToUnicode(candidate)
		if candidate == "" || ContainsEmail(list, candidate) {
			return
		}
		if !strings.Contains(candidate, "@") {
			opts.reject(candidate, RejectInvalid)
			return
		}
		if opts.ExcludeAlias != nil && opts.ExcludeAlias.MatchString(candidate) {
			opts.reject(candidate, RejectExcluded)
			return
		}
		list = append(list, candidate)
	}

	for _, a := range rec.Family(FamilyEmail) {
		for _, v := range Values(a.Value) {
			add(v)
		}
	}

	if opts.HandleProxyAddresses {
		for _, a := range rec.Family(FamilyProxyAddresses) {
			for _, v := range Values(a.Value) {
				add(stripSMTPPrefix(strings.TrimSpace(v)))
			}
		}
	}

	return DedupeEmails(list)
}

func (o CollectOptions) reject(candidate string, reason RejectReason) {
	if o.OnReject != nil {
		o.OnReject(candidate, reason)
	}
}

// stripSMTPPrefix removes one leading "smtp:" (any case) from an Active
// Directory proxyAddresses entry.
func stripSMTPPrefix(s string) string {
	const prefix = "smtp:"
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}

// UserDataFromResults turns a directory search result into user data.
// Zero records yield (nil, nil); more than one yields ErrAmbiguousMatch.
func UserDataFromResults(records []Record, extract ExtractOptions, collect CollectOptions) (*UserData, error) {
	switch len(records) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, ErrAmbiguousMatch
	}

	u := ExtractUserData(records[0], extract)
	u.Emails = CollectEmails(records[0], u.PrimaryEmail, collect)
	return u, nil
}
