package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for directory connections.
type ConnectionConfig struct {
	// Connection settings
	LDAPURLs []string      // Servers tried in order until one accepts the connection
	BaseDN   string        // Base DN for searches (may contain login placeholders)
	Timeout  time.Duration // Connection and request timeout

	// Authentication settings
	Username       string // Bind DN, UPN or Kerberos principal
	Password       string // Password for simple bind or Kerberos password login
	KerberosRealm  string // Kerberos realm for GSSAPI authentication
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosConfig string // Path to Kerberos config file (krb5.conf)
	KerberosCCache string // Path to a Kerberos credential cache
	KerberosSPN    string // Service principal override

	// TLS settings
	TLSConfig         *tls.Config // Custom TLS configuration
	StartTLS          bool        // Upgrade plain ldap:// connections
	TLSClientCertFile string      // Client certificate for external authentication
	TLSClientKeyFile  string      // Client private key for external authentication

	// Retry settings
	MaxRetries     int           // Maximum retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	BackoffFactor  float64       // Backoff multiplication factor
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:        10 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host   string
	Port   int
	UseTLS bool
}

// Client provides the read-only directory operations identity sync needs.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Ping(ctx context.Context) error
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN       string
	Scope        SearchScope
	Filter       string
	Attributes   []string
	SizeLimit    int
	TimeLimit    time.Duration
	DerefAliases DerefAliases
}

// SearchResult contains search results and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	Total   int
	HasMore bool
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// String returns the configuration spelling of the scope.
func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "list"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases DerefAliases = iota
	DerefInSearching
	DerefFindingBaseObj
	DerefAlways
)

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodAnonymous  AuthMethod = iota // No bind at all
	AuthMethodSimpleBind                   // Username/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
	AuthMethodExternal                     // External/certificate authentication
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodAnonymous:
		return "anonymous"
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodExternal:
		return "external"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	// Kerberos authentication takes precedence
	if c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.Username != "") {
		return AuthMethodKerberos
	}

	if c.Username != "" {
		return AuthMethodSimpleBind
	}

	if c.TLSClientCertFile != "" && c.TLSClientKeyFile != "" {
		return AuthMethodExternal
	}

	return AuthMethodAnonymous
}

// RetryableError indicates an error that can be retried.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-related errors.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool {
	return e.retryable
}

func (e *ConnectionError) Unwrap() error {
	return e.cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{
		message:   message,
		retryable: retryable,
		cause:     cause,
	}
}
