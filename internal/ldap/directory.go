package ldap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/identity-from-directory/internal/identity"
)

// AllFields selects the configured search fields in Directory.Search.
const AllFields = "*"

// DNKey is the reserved record key holding the entry's DN.
const DNKey = identity.ReservedPrefix + "dn"

// DirectoryConfig describes how login names are looked up.
type DirectoryConfig struct {
	BaseDN       string
	Scope        SearchScope
	Filter       string
	SearchFields []string
	Fieldmap     map[string]string
	SizeLimit    int
	TimeLimit    time.Duration
}

// ParseScope maps the configuration spelling (sub, base, list) to a scope.
func ParseScope(s string) (SearchScope, error) {
	switch strings.ToLower(s) {
	case "", "sub":
		return ScopeWholeSubtree, nil
	case "base":
		return ScopeBaseObject, nil
	case "list", "one":
		return ScopeSingleLevel, nil
	default:
		return ScopeWholeSubtree, fmt.Errorf("invalid search scope %q: must be one of sub, base, list", s)
	}
}

// Directory searches the directory and returns entries as identity records
// keyed by fieldmap names.
type Directory struct {
	client Client
	config DirectoryConfig
	vars   LoginVars
	keys   []string

	guids *GUIDHandler
	sids  *SIDHandler
}

// NewDirectory returns a Directory over client. vars fill the login
// placeholders of the base DN and filter.
func NewDirectory(client Client, config DirectoryConfig, vars LoginVars) *Directory {
	keys := make([]string, 0, len(config.Fieldmap))
	for k := range config.Fieldmap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Directory{
		client: client,
		config: config,
		vars:   vars,
		keys:   keys,
		guids:  NewGUIDHandler(),
		sids:   NewSIDHandler(),
	}
}

// Close releases the underlying client.
func (d *Directory) Close() error {
	return d.client.Close()
}

// Search looks term up in the given fields. A nil field list or a single
// AllFields entry searches the configured search fields. With exact set the
// fields must equal term; otherwise they must contain it.
func (d *Directory) Search(ctx context.Context, fields []string, term string, exact bool) ([]identity.Record, error) {
	if len(fields) == 0 || (len(fields) == 1 && fields[0] == AllFields) {
		fields = d.config.SearchFields
	}

	req := &SearchRequest{
		BaseDN:     d.vars.ExpandDN(d.config.BaseDN),
		Scope:      d.config.Scope,
		Filter:     d.BuildFilter(fields, term, exact),
		Attributes: d.Attributes(),
		SizeLimit:  d.config.SizeLimit,
		TimeLimit:  d.config.TimeLimit,
	}

	result, err := d.client.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	records := make([]identity.Record, 0, len(result.Entries))
	for _, entry := range result.Entries {
		records = append(records, d.RecordFromEntry(ctx, entry))
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Directory lookup finished", map[string]any{
		"term":    term,
		"exact":   exact,
		"records": len(records),
	})

	return records, nil
}

// BuildFilter returns (&<filter>(|(attr=term)...)) for the given fields.
func (d *Directory) BuildFilter(fields []string, term string, exact bool) string {
	value := ldap.EscapeFilter(term)
	if !exact {
		value = "*" + value + "*"
	}

	var terms []string
	for _, attr := range d.searchAttributes(fields) {
		terms = append(terms, "("+attr+"="+value+")")
	}

	var match string
	switch len(terms) {
	case 0:
		match = "(objectClass=*)"
	case 1:
		match = terms[0]
	default:
		match = "(|" + strings.Join(terms, "") + ")"
	}

	base := strings.TrimSpace(d.vars.ExpandFilter(d.config.Filter))
	if base == "" {
		return match
	}
	if !strings.HasPrefix(base, "(") {
		base = "(" + base + ")"
	}
	return "(&" + base + match + ")"
}

// searchAttributes resolves search fields to directory attributes. Fields
// that are fieldmap keys use their mapped attribute; others are used as
// attribute names.
func (d *Directory) searchAttributes(fields []string) []string {
	var attrs []string
	for _, f := range fields {
		attr := f
		if mapped, ok := d.config.Fieldmap[f]; ok {
			attr = mapped
		}
		if !containsFold(attrs, attr) {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// Attributes returns the directory attributes named by the fieldmap.
func (d *Directory) Attributes() []string {
	var attrs []string
	for _, k := range d.keys {
		if attr := d.config.Fieldmap[k]; !containsFold(attrs, attr) {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// RecordFromEntry maps an entry through the fieldmap. Keys appear in sorted
// order after the reserved DN key; attributes the entry lacks are omitted.
func (d *Directory) RecordFromEntry(ctx context.Context, entry *ldap.Entry) identity.Record {
	rec := identity.NewRecord(identity.Attribute{Name: DNKey, Value: identity.Scalar(entry.DN)})

	for _, key := range d.keys {
		values := d.entryValues(ctx, entry, d.config.Fieldmap[key])
		if len(values) == 0 {
			continue
		}
		rec.Attributes = append(rec.Attributes, identity.Attribute{Name: key, Value: identity.ValueOf(values)})
	}

	return rec
}

func (d *Directory) entryValues(ctx context.Context, entry *ldap.Entry, attr string) []string {
	for _, a := range entry.Attributes {
		if !strings.EqualFold(a.Name, attr) {
			continue
		}

		var convert func([]byte) (string, error)
		switch strings.ToLower(attr) {
		case "objectguid":
			convert = d.guids.GUIDBytesToString
		case "objectsid":
			convert = d.sids.ConvertBinarySIDToString
		default:
			return a.Values
		}

		out := make([]string, 0, len(a.ByteValues))
		for _, raw := range a.ByteValues {
			s, err := convert(raw)
			if err != nil {
				tflog.SubsystemWarn(ctx, Subsystem, "Skipping undecodable binary attribute", map[string]any{
					"dn":        entry.DN,
					"attribute": a.Name,
					"error":     err.Error(),
				})
				continue
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
