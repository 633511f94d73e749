package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
		code      uint16
	}{
		{
			name:     "invalid credentials",
			err:      ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr: DSID-0C090439")),
			category: ErrorCategoryAuthentication,
			code:     ldap.LDAPResultInvalidCredentials,
		},
		{
			name:      "server busy",
			err:       ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")),
			category:  ErrorCategoryServer,
			retryable: true,
			code:      ldap.LDAPResultBusy,
		},
		{
			name:      "network error",
			err:       ldap.NewError(ldap.ErrorNetwork, errors.New("read: connection reset")),
			category:  ErrorCategoryConnection,
			retryable: true,
			code:      ldap.ErrorNetwork,
		},
		{
			name:     "bad filter",
			err:      ldap.NewError(ldap.LDAPResultFilterError, errors.New("bad filter")),
			category: ErrorCategoryValidation,
			code:     ldap.LDAPResultFilterError,
		},
		{
			name:      "generic timeout",
			err:       errors.New("dial tcp 10.0.0.1:636: i/o timeout"),
			category:  ErrorCategoryConnection,
			retryable: true,
		},
		{
			name:     "generic unknown",
			err:      errors.New("something odd"),
			category: ErrorCategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewLDAPError("search", tt.err)
			require.NotNil(t, e)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.retryable, e.IsRetryable())
			assert.Equal(t, tt.code, e.LDAPCode)
			assert.ErrorIs(t, e, tt.err)
		})
	}

	assert.Nil(t, NewLDAPError("search", nil))
}

func TestLDAPError_Error(t *testing.T) {
	e := &LDAPError{
		Operation: "bind",
		LDAPCode:  49,
		Message:   "Invalid Credentials",
		ServerMsg: "80090308: LdapErr",
	}
	assert.Equal(t, "LDAP bind failed (code 49) - Invalid Credentials - server: 80090308: LdapErr", e.Error())

	e = &LDAPError{Operation: "search", Message: "boom", ServerMsg: "boom"}
	assert.Equal(t, "LDAP search failed - boom", e.Error())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"retryable connection error", NewConnectionError("dial", true, nil), true},
		{"final connection error", NewConnectionError("exhausted", false, errors.New("timeout")), false},
		{"wrapped ldap busy", fmt.Errorf("search: %w", ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))), true},
		{"ldap no such object", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone")), false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"plain error", errors.New("nope"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("search", nil))

	base := ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied"))
	wrapped := WrapError("search", base)
	assert.Equal(t, ErrorCategoryPermission, GetErrorCategory(wrapped))
	assert.Same(t, wrapped, WrapError("bind", wrapped), "already wrapped errors are returned as is")
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(nil))
	assert.Equal(t, ErrorCategoryNotFound, GetErrorCategory(ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("x"))))
	assert.Equal(t, ErrorCategoryAuthentication, GetErrorCategory(errors.New("kerberos: preauth failed")))
	assert.True(t, IsAuthenticationError(WrapError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("x")))))
}
