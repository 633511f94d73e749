package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/isometry/identity-from-directory/internal/ldap"
)

// EnvPrefix prefixes environment overrides, e.g. IDENTITY_SYNC_LDAP_BIND_PASS.
const EnvPrefix = "IDENTITY_SYNC"

// ErrInvalidConfig marks configurations that cannot drive a sync. Logins
// proceed without touching identities.
var ErrInvalidConfig = errors.New("invalid identity sync configuration")

// DefaultSearchFields are searched when search_fields is not configured.
var DefaultSearchFields = []string{"mail", "sAMAccountName", "username"}

// RequiredFields must be present in the fieldmap.
var RequiredFields = []string{"name", "email", "organization"}

// Config is the identity sync configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (IDENTITY_SYNC_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	LDAP     LDAPConfig     `mapstructure:"ldap"`

	// MailDomain fills %d and %dc for logins without a domain part.
	MailDomain string `mapstructure:"mail_domain"`

	HandleProxyAddresses        bool   `mapstructure:"handle_proxyaddresses"`
	Debug                       bool   `mapstructure:"debug"`
	ExcludeAliasRegex           string `mapstructure:"exclude_alias_regex"`
	DeleteUnmanaged             bool   `mapstructure:"delete_unmanaged"`
	ExcludeDeleteUnmanagedRegex string `mapstructure:"exclude_delete_unmanaged_regex"`

	UpdateSignatures           bool              `mapstructure:"update_signatures" default:"true"`
	UseHTMLSignature           bool              `mapstructure:"use_html_signature"`
	WashHTMLSignature          bool              `mapstructure:"wash_html_signature" default:"true"`
	SignatureTemplatePlaintext string            `mapstructure:"signature_template_plaintext"`
	SignatureTemplateHTML      string            `mapstructure:"signature_template_html"`
	FallbackValues             map[string]string `mapstructure:"fallback_values"`
}

// LoggingConfig controls the root logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" default:"INFO" validate:"oneof=TRACE DEBUG INFO WARN ERROR OFF trace debug info warn error off"`
}

// DatabaseConfig locates the SQLite identity store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" default:"identities.db" validate:"required"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LDAPConfig is the directory search configuration.
type LDAPConfig struct {
	Hosts        []string          `mapstructure:"hosts" validate:"required,min=1,dive,url"`
	BaseDN       string            `mapstructure:"base_dn"`
	BindDN       string            `mapstructure:"bind_dn"`
	BindPass     string            `mapstructure:"bind_pass"`
	Scope        string            `mapstructure:"scope" default:"sub" validate:"oneof=sub base list"`
	Filter       string            `mapstructure:"filter"`
	SearchFields []string          `mapstructure:"search_fields"`
	Fieldmap     map[string]string `mapstructure:"fieldmap"`

	Timeout            time.Duration `mapstructure:"timeout" default:"10s" validate:"gt=0"`
	StartTLS           bool          `mapstructure:"start_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	CACertFile         string        `mapstructure:"ca_cert_file"`
	ClientCertFile     string        `mapstructure:"client_cert_file"`
	ClientKeyFile      string        `mapstructure:"client_key_file" validate:"required_with=ClientCertFile"`
	SizeLimit          int           `mapstructure:"size_limit" default:"2" validate:"gte=0"`
	TimeLimit          time.Duration `mapstructure:"time_limit" validate:"gte=0"`
	MaxRetries         int           `mapstructure:"max_retries" default:"2" validate:"gte=0"`

	Kerberos KerberosConfig `mapstructure:"kerberos"`
}

// KerberosConfig enables a GSSAPI bind when Realm or a realm-qualified
// bind_dn is combined with a keytab, credential cache or password.
type KerberosConfig struct {
	Realm  string `mapstructure:"realm"`
	Keytab string `mapstructure:"keytab"`
	Config string `mapstructure:"config"`
	CCache string `mapstructure:"ccache"`
	SPN    string `mapstructure:"spn"`
}

// keys lists every settable key so environment overrides work without a
// configuration file.
var keys = []string{
	"logging.level",
	"database.path",
	"metrics.textfile",
	"ldap.hosts", "ldap.base_dn", "ldap.bind_dn", "ldap.bind_pass", "ldap.scope",
	"ldap.filter", "ldap.search_fields", "ldap.timeout", "ldap.start_tls",
	"ldap.insecure_skip_verify", "ldap.ca_cert_file", "ldap.client_cert_file",
	"ldap.client_key_file", "ldap.size_limit", "ldap.time_limit", "ldap.max_retries",
	"ldap.kerberos.realm", "ldap.kerberos.keytab", "ldap.kerberos.config",
	"ldap.kerberos.ccache", "ldap.kerberos.spn",
	"mail_domain", "handle_proxyaddresses", "debug", "exclude_alias_regex",
	"delete_unmanaged", "exclude_delete_unmanaged_regex", "update_signatures",
	"use_html_signature", "wash_html_signature", "signature_template_plaintext",
	"signature_template_html",
}

// Load reads configuration from path (if non-empty) and the environment,
// applies defaults and validates the structure. It does not check
// readiness; see Ready.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks structural constraints declared in validate tags.
func Validate(cfg *Config) error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

// Ready completes derived settings and reports whether the configuration
// can drive a sync. Missing search fields fall back to DefaultSearchFields;
// with HandleProxyAddresses the fieldmap gains proxyaddresses. A missing
// required fieldmap entry yields an error wrapping ErrInvalidConfig.
func (c *Config) Ready() error {
	if c.LDAP.Fieldmap == nil {
		c.LDAP.Fieldmap = map[string]string{}
	}

	var missing []string
	for _, f := range RequiredFields {
		if strings.TrimSpace(c.LDAP.Fieldmap[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: fieldmap is missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if c.HandleProxyAddresses {
		if _, ok := c.LDAP.Fieldmap["proxyaddresses"]; !ok {
			c.LDAP.Fieldmap["proxyaddresses"] = "proxyAddresses"
		}
	}

	if c.LDAP.SearchFields == nil {
		c.LDAP.SearchFields = append([]string(nil), DefaultSearchFields...)
	}
	if len(c.LDAP.SearchFields) == 0 {
		return fmt.Errorf("%w: search_fields is empty", ErrInvalidConfig)
	}

	if _, err := CompilePattern(c.ExcludeAliasRegex); err != nil {
		return fmt.Errorf("%w: exclude_alias_regex: %w", ErrInvalidConfig, err)
	}
	if _, err := CompilePattern(c.ExcludeDeleteUnmanagedRegex); err != nil {
		return fmt.Errorf("%w: exclude_delete_unmanaged_regex: %w", ErrInvalidConfig, err)
	}

	return nil
}

// ConnectionConfig converts the ldap section into a client configuration.
func (c LDAPConfig) ConnectionConfig() (*ldap.ConnectionConfig, error) {
	cc := ldap.DefaultConfig()
	cc.LDAPURLs = c.Hosts
	cc.BaseDN = c.BaseDN
	cc.Timeout = c.Timeout
	cc.MaxRetries = c.MaxRetries
	cc.Username = c.BindDN
	cc.Password = c.BindPass
	cc.StartTLS = c.StartTLS
	cc.TLSClientCertFile = c.ClientCertFile
	cc.TLSClientKeyFile = c.ClientKeyFile
	cc.KerberosRealm = c.Kerberos.Realm
	cc.KerberosKeytab = c.Kerberos.Keytab
	cc.KerberosConfig = c.Kerberos.Config
	cc.KerberosCCache = c.Kerberos.CCache
	cc.KerberosSPN = c.Kerberos.SPN

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}
	if c.CACertFile != "" {
		pem, err := os.ReadFile(c.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}
	if c.ClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCertFile, c.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	cc.TLSConfig = tlsConfig

	return cc, nil
}

// DirectoryConfig converts the ldap section into lookup settings. Call Ready
// first so search fields and the fieldmap are complete.
func (c LDAPConfig) DirectoryConfig() (ldap.DirectoryConfig, error) {
	scope, err := ldap.ParseScope(c.Scope)
	if err != nil {
		return ldap.DirectoryConfig{}, err
	}
	return ldap.DirectoryConfig{
		BaseDN:       c.BaseDN,
		Scope:        scope,
		Filter:       c.Filter,
		SearchFields: c.SearchFields,
		Fieldmap:     c.Fieldmap,
		SizeLimit:    c.SizeLimit,
		TimeLimit:    c.TimeLimit,
	}, nil
}

// LogFields returns the configuration as log fields with credentials
// redacted.
func (c *Config) LogFields() map[string]any {
	return ldap.SanitizeFields(map[string]any{
		"hosts":                 strings.Join(c.LDAP.Hosts, ","),
		"base_dn":               c.LDAP.BaseDN,
		"bind_dn":               c.LDAP.BindDN,
		"bind_pass":             c.LDAP.BindPass,
		"scope":                 c.LDAP.Scope,
		"filter":                c.LDAP.Filter,
		"search_fields":         strings.Join(c.LDAP.SearchFields, ","),
		"handle_proxyaddresses": c.HandleProxyAddresses,
		"delete_unmanaged":      c.DeleteUnmanaged,
		"update_signatures":     c.UpdateSignatures,
		"use_html_signature":    c.UseHTMLSignature,
	})
}
