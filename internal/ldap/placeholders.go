package ldap

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// LoginVars are the login-derived values substituted into base DNs and
// filters:
//
//	%fu  full login name (alice@example.com)
//	%u   local part of the login (alice)
//	%d   mail domain (example.com)
//	%dc  mail domain as DN components (dc=example,dc=com)
type LoginVars struct {
	FullUser string
	User     string
	Domain   string
}

// NewLoginVars derives LoginVars from a login name. mailDomain is used when
// the login carries no domain of its own.
func NewLoginVars(login, mailDomain string) LoginVars {
	v := LoginVars{FullUser: login, User: login, Domain: mailDomain}
	if user, domain, ok := strings.Cut(login, "@"); ok {
		v.User, v.Domain = user, domain
	}
	return v
}

func (v LoginVars) domainComponents(escape func(string) string) string {
	if v.Domain == "" {
		return ""
	}
	labels := strings.Split(v.Domain, ".")
	for i, l := range labels {
		labels[i] = "dc=" + escape(l)
	}
	return strings.Join(labels, ",")
}

// ExpandDN substitutes login placeholders in a DN, escaping values as DN
// attribute values.
func (v LoginVars) ExpandDN(dn string) string {
	return strings.NewReplacer(
		"%fu", EscapeDNValue(v.FullUser),
		"%u", EscapeDNValue(v.User),
		"%dc", v.domainComponents(EscapeDNValue),
		"%d", EscapeDNValue(v.Domain),
	).Replace(dn)
}

// ExpandFilter substitutes login placeholders in a search filter, escaping
// values for filter use.
func (v LoginVars) ExpandFilter(filter string) string {
	return strings.NewReplacer(
		"%fu", ldap.EscapeFilter(v.FullUser),
		"%u", ldap.EscapeFilter(v.User),
		"%dc", v.domainComponents(ldap.EscapeFilter),
		"%d", ldap.EscapeFilter(v.Domain),
	).Replace(filter)
}

// EscapeDNValue escapes a DN attribute value according to RFC 4514.
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	for i, r := range value {
		switch {
		case strings.ContainsRune(`,+"\<>;=`, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '#' && i == 0:
			b.WriteString(`\#`)
		case r == ' ' && (i == 0 || i == len(value)-1):
			b.WriteString(`\ `)
		case r == 0:
			b.WriteString(`\00`)
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}
