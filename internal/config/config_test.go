package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/identity-from-directory/internal/ldap"
)

const sampleYAML = `
logging:
  level: DEBUG
ldap:
  hosts:
    - ldaps://dc1.contoso.com
    - ldaps://dc2.contoso.com:636
  base_dn: OU=Staff,%dc
  bind_dn: CN=svc-mail,OU=Service,DC=contoso,DC=com
  bind_pass: s3cret
  scope: list
  filter: (objectClass=user)
  fieldmap:
    name: displayName
    email: mail
    organization: company
    phone: telephoneNumber
  timeout: 3s
handle_proxyaddresses: true
delete_unmanaged: true
exclude_delete_unmanaged_regex: /@legacy\.contoso\.com$/i
update_signatures: false
fallback_values:
  organization: Contoso
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, []string{"ldaps://dc1.contoso.com", "ldaps://dc2.contoso.com:636"}, cfg.LDAP.Hosts)
	assert.Equal(t, "list", cfg.LDAP.Scope)
	assert.Equal(t, 3*time.Second, cfg.LDAP.Timeout)
	assert.Equal(t, "displayName", cfg.LDAP.Fieldmap["name"])
	assert.Equal(t, "Contoso", cfg.FallbackValues["organization"])
	assert.True(t, cfg.HandleProxyAddresses)
	assert.True(t, cfg.DeleteUnmanaged)
	assert.False(t, cfg.UpdateSignatures, "explicit false overrides the default")

	// defaults
	assert.True(t, cfg.WashHTMLSignature)
	assert.Equal(t, 2, cfg.LDAP.SizeLimit)
	assert.Equal(t, 2, cfg.LDAP.MaxRetries)
	assert.Equal(t, "identities.db", cfg.Database.Path)
	assert.Nil(t, cfg.LDAP.SearchFields)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("IDENTITY_SYNC_LDAP_BIND_PASS", "from-env")
	t.Setenv("IDENTITY_SYNC_LDAP_SEARCH_FIELDS", "mail,uid")
	t.Setenv("IDENTITY_SYNC_DEBUG", "true")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LDAP.BindPass)
	assert.Equal(t, []string{"mail", "uid"}, cfg.LDAP.SearchFields)
	assert.True(t, cfg.Debug)
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	t.Setenv("IDENTITY_SYNC_LDAP_HOSTS", "ldap://localhost:389")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"ldap://localhost:389"}, cfg.LDAP.Hosts)
	assert.True(t, cfg.UpdateSignatures)
	assert.Equal(t, "sub", cfg.LDAP.Scope)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no hosts",
			content: "ldap:\n  base_dn: DC=contoso,DC=com\n",
			wantErr: "Hosts",
		},
		{
			name:    "bad scope",
			content: "ldap:\n  hosts: [ldap://dc1]\n  scope: tree\n",
			wantErr: "oneof",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: LOUD\nldap:\n  hosts: [ldap://dc1]\n",
			wantErr: "oneof",
		},
		{
			name:    "bad duration",
			content: "ldap:\n  hosts: [ldap://dc1]\n  timeout: soon\n",
			wantErr: "unmarshal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Ready(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErr  string
		validate func(t *testing.T, c *Config)
	}{
		{
			name: "defaults search fields",
			config: Config{LDAP: LDAPConfig{Fieldmap: map[string]string{
				"name": "cn", "email": "mail", "organization": "o",
			}}},
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultSearchFields, c.LDAP.SearchFields)
				assert.NotContains(t, c.LDAP.Fieldmap, "proxyaddresses")
			},
		},
		{
			name: "adds proxyaddresses",
			config: Config{
				HandleProxyAddresses: true,
				LDAP: LDAPConfig{
					SearchFields: []string{"mail"},
					Fieldmap:     map[string]string{"name": "cn", "email": "mail", "organization": "o"},
				},
			},
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "proxyAddresses", c.LDAP.Fieldmap["proxyaddresses"])
				assert.Equal(t, []string{"mail"}, c.LDAP.SearchFields)
			},
		},
		{
			name:    "missing fieldmap entries",
			config:  Config{LDAP: LDAPConfig{Fieldmap: map[string]string{"name": "cn"}}},
			wantErr: "fieldmap is missing email, organization",
		},
		{
			name:    "no fieldmap",
			config:  Config{},
			wantErr: "fieldmap is missing name, email, organization",
		},
		{
			name: "empty search fields",
			config: Config{LDAP: LDAPConfig{
				SearchFields: []string{},
				Fieldmap:     map[string]string{"name": "cn", "email": "mail", "organization": "o"},
			}},
			wantErr: "search_fields is empty",
		},
		{
			name: "bad pattern",
			config: Config{
				ExcludeAliasRegex: "/(unclosed/",
				LDAP:              LDAPConfig{Fieldmap: map[string]string{"name": "cn", "email": "mail", "organization": "o"}},
			},
			wantErr: "exclude_alias_regex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.config
			err := c.Ready()
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, &c)
		})
	}
}

func TestLDAPConfig_ConnectionConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	cc, err := cfg.LDAP.ConnectionConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.LDAP.Hosts, cc.LDAPURLs)
	assert.Equal(t, "CN=svc-mail,OU=Service,DC=contoso,DC=com", cc.Username)
	assert.Equal(t, 3*time.Second, cc.Timeout)
	assert.Equal(t, ldap.AuthMethodSimpleBind, cc.GetAuthMethod())
	require.NotNil(t, cc.TLSConfig)
	assert.False(t, cc.TLSConfig.InsecureSkipVerify)

	cfg.LDAP.CACertFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err = cfg.LDAP.ConnectionConfig()
	assert.Error(t, err)
}

func TestLDAPConfig_DirectoryConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Ready())

	dc, err := cfg.LDAP.DirectoryConfig()
	require.NoError(t, err)
	assert.Equal(t, ldap.ScopeSingleLevel, dc.Scope)
	assert.Equal(t, "OU=Staff,%dc", dc.BaseDN)
	assert.Equal(t, DefaultSearchFields, dc.SearchFields)
	assert.Equal(t, "proxyAddresses", dc.Fieldmap["proxyaddresses"])
}

func TestConfig_LogFields(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	fields := cfg.LogFields()
	assert.Equal(t, "[REDACTED]", fields["bind_pass"])
	assert.Equal(t, "CN=svc-mail,OU=Service,DC=contoso,DC=com", fields["bind_dn"])
}
