package ldap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflogtest"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFields(t *testing.T) {
	fields := map[string]any{
		"bind_dn":   "CN=svc,DC=example,DC=com",
		"Password":  "hunter2",
		"bind_pass": "hunter2",
		"url":       "ldaps://dc1?password=hunter2",
		"attempt":   2,
	}

	got := SanitizeFields(fields)
	assert.Equal(t, map[string]any{
		"bind_dn":   "CN=svc,DC=example,DC=com",
		"Password":  "[REDACTED]",
		"bind_pass": "[REDACTED]",
		"url":       "[REDACTED]",
		"attempt":   2,
	}, got)
	assert.Equal(t, "hunter2", fields["Password"], "input is not modified")
}

func TestLogOperation(t *testing.T) {
	var out bytes.Buffer
	ctx := tflog.NewSubsystem(tflogtest.RootLogger(context.Background(), &out), Subsystem)

	err := LogOperation(ctx, Subsystem, "bind", map[string]any{"password": "hunter2"}, func() error {
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	entries, err := tflogtest.MultilineJSONDecode(&out)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Starting operation", entries[0]["@message"])
	assert.Equal(t, "[REDACTED]", entries[0]["password"])
	assert.Equal(t, "Operation failed", entries[1]["@message"])
	assert.Equal(t, "boom", entries[1]["error"])
	assert.Equal(t, "bind", entries[1]["operation"])
}

func TestLogLDAPError(t *testing.T) {
	var out bytes.Buffer
	ctx := tflog.NewSubsystem(tflogtest.RootLogger(context.Background(), &out), Subsystem)

	LogLDAPError(ctx, Subsystem, "search", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("0000208D: NameErr")), nil)

	entries, err := tflogtest.MultilineJSONDecode(&out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0]["@level"])
	assert.Equal(t, float64(ldap.LDAPResultNoSuchObject), entries[0]["ldap_result_code"])
	assert.Equal(t, "0000208D: NameErr", entries[0]["ldap_diagnostic_message"])
}
