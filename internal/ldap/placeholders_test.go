package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoginVars(t *testing.T) {
	assert.Equal(t, LoginVars{FullUser: "alice@example.com", User: "alice", Domain: "example.com"},
		NewLoginVars("alice@example.com", "fallback.org"))
	assert.Equal(t, LoginVars{FullUser: "alice", User: "alice", Domain: "fallback.org"},
		NewLoginVars("alice", "fallback.org"))
}

func TestLoginVars_Expand(t *testing.T) {
	vars := NewLoginVars("o'brien,jr@sub.example.com", "")

	assert.Equal(t,
		`CN=o'brien\,jr,OU=People,dc=sub,dc=example,dc=com`,
		vars.ExpandDN("CN=%u,OU=People,%dc"))
	assert.Equal(t,
		`(|(userPrincipalName=o'brien,jr@sub.example.com)(mail=*@sub.example.com))`,
		vars.ExpandFilter("(|(userPrincipalName=%fu)(mail=*@%d))"))
	assert.Equal(t, "(uid=a\\2a)", NewLoginVars("a*", "").ExpandFilter("(uid=%u)"))
	assert.Equal(t, "DC=contoso,DC=com", LoginVars{}.ExpandDN("DC=contoso,DC=com"))
	assert.Equal(t, "OU=x,", LoginVars{}.ExpandDN("OU=x,%dc"))
}

func TestEscapeDNValue(t *testing.T) {
	tests := map[string]string{
		"John Doe":  "John Doe",
		"Doe, John": `Doe\, John`,
		" John ":    `\ John\ `,
		"#123":      `\#123`,
		"a#b":       "a#b",
		"John<>Doe": `John\<\>Doe`,
		"a=b":       `a\=b`,
		"x\x00y":    `x\00y`,
		"":          "",
	}
	for in, expected := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, expected, EscapeDNValue(in))
		})
	}
}
