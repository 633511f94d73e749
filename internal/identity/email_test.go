package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"identical", "alice@example.com", "alice@example.com", true},
		{"case of local part", "Alice@example.com", "alice@example.com", true},
		{"case of domain", "alice@EXAMPLE.COM", "alice@example.com", true},
		{"surrounding whitespace", "  alice@example.com\t", "alice@example.com", true},
		{"punycode vs unicode", "Foo@Exämple.com", "foo@xn--exmple-cua.com", true},
		{"upper-case ACE prefix", "user@XN--BCHER-KVA.example", "user@bücher.example", true},
		{"different local part", "alice@example.com", "bob@example.com", false},
		{"different domain", "alice@example.com", "alice@example.org", false},
		{"no at sign", "Alice", "alice", true},
		{"sharp s domain is not folded", "a@straße.de", "a@strasse.de", false},
		{"sharp s local part is not folded", "strauß@example.com", "strauss@example.com", false},
		{"sharp s domain punycode", "a@xn--strae-oqa.de", "a@STRAßE.de", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EqualEmails(tt.a, tt.b))
		})
	}
}

func TestCanonical_Idempotent(t *testing.T) {
	inputs := []string{
		"Foo@Exämple.com",
		"foo@xn--exmple-cua.com",
		"  MiXeD@Bücher.Example ",
		"user@XN--BCHER-KVA.EXAMPLE",
		"no-at-sign",
		"",
		"weird@@double.example",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once := Canonical(in)
			assert.Equal(t, once, Canonical(once))
		})
	}
}

func TestToUnicodeAndASCII(t *testing.T) {
	assert.Equal(t, "user@bücher.example", ToUnicode(" user@xn--bcher-kva.example "))
	assert.Equal(t, "user@xn--bcher-kva.example", ToASCII("user@bücher.example"))
	assert.Equal(t, "User@Example.com", ToUnicode("User@Example.com"), "local part and ASCII domain are kept")
	assert.Equal(t, "not-an-address", ToASCII("not-an-address"))
}

func TestDedupeEmails(t *testing.T) {
	in := []string{
		"Alice@Example.com",
		"alice@example.com",
		"bob@bücher.example",
		"BOB@xn--bcher-kva.example",
		"carol@example.com",
	}

	assert.Equal(t, []string{
		"Alice@Example.com",
		"bob@bücher.example",
		"carol@example.com",
	}, DedupeEmails(in))
}

func TestIndexEmail(t *testing.T) {
	set := []string{"a@x.com", "B@X.com"}

	assert.Equal(t, 1, IndexEmail(set, "b@x.com"))
	assert.Equal(t, -1, IndexEmail(set, "c@x.com"))
	assert.True(t, ContainsEmail(set, "A@X.COM"))
	assert.False(t, ContainsEmail(nil, "a@x.com"))
}
