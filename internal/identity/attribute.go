package identity

import (
	"strings"
)

// ReservedPrefix marks record keys that carry backend bookkeeping (e.g. "_dn")
// rather than user data.
const ReservedPrefix = "_"

// Value is a directory attribute value. Directories return a single value as a
// scalar and several values as a sequence; both forms are equivalent once
// passed through Values.
type Value interface {
	isValue()
}

// Scalar is a single-valued attribute.
type Scalar string

// Sequence is a multi-valued attribute in directory order.
type Sequence []string

func (Scalar) isValue()   {}
func (Sequence) isValue() {}

// Values normalizes any Value to a sequence. A nil Value yields nil.
func Values(v Value) []string {
	switch t := v.(type) {
	case Scalar:
		return []string{string(t)}
	case Sequence:
		return []string(t)
	default:
		return nil
	}
}

// First returns the first value of v, or "" when v holds no values.
func First(v Value) string {
	vals := Values(v)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// ValueOf builds the natural Value for a list of attribute values: a Scalar
// for exactly one value, a Sequence otherwise.
func ValueOf(values []string) Value {
	if len(values) == 1 {
		return Scalar(values[0])
	}
	return Sequence(values)
}

// Attribute is one named value of a Record.
type Attribute struct {
	Name  string
	Value Value
}

// Record is a single directory search result keyed by fieldmap names.
// Attribute order is preserved so that "first writer wins" rules are
// deterministic.
type Record struct {
	Attributes []Attribute
}

// NewRecord creates a record from name/value pairs in order.
func NewRecord(attrs ...Attribute) Record {
	return Record{Attributes: attrs}
}

// Set appends or replaces an attribute (case-insensitive name match).
func (r *Record) Set(name string, v Value) {
	for i := range r.Attributes {
		if strings.EqualFold(r.Attributes[i].Name, name) {
			r.Attributes[i].Value = v
			return
		}
	}
	r.Attributes = append(r.Attributes, Attribute{Name: name, Value: v})
}

// Get returns the value of the attribute whose name equals name,
// ignoring case.
func (r Record) Get(name string) (Value, bool) {
	for _, a := range r.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return nil, false
}

// Family returns every attribute that belongs to the given key family,
// in record order.
func (r Record) Family(family string) []Attribute {
	var out []Attribute
	for _, a := range r.Attributes {
		if KeyFamily(a.Name) == family {
			out = append(out, a)
		}
	}
	return out
}

// KeyFamily lower-cases an attribute name and strips an option suffix, so
// that "Email", "email:work" and "EMAIL:pref" all belong to "email".
func KeyFamily(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// Key families with special meaning for identities.
const (
	FamilyEmail          = "email"
	FamilyProxyAddresses = "proxyaddresses"
	FamilyName           = "name"
)
