package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// kerberosPrincipal is the resolved client principal for a GSSAPI bind.
type kerberosPrincipal struct {
	Username string
	Realm    string
}

// resolvePrincipal splits "user@REALM" when no realm is configured. The
// configuration itself is left untouched.
func resolvePrincipal(cfg *ConnectionConfig) (kerberosPrincipal, error) {
	p := kerberosPrincipal{Username: cfg.Username, Realm: cfg.KerberosRealm}

	if p.Realm == "" {
		if user, realm, ok := strings.Cut(cfg.Username, "@"); ok {
			p.Username, p.Realm = user, realm
		}
	}

	if p.Realm == "" {
		return p, fmt.Errorf("kerberos realm is required (set kerberos.realm or include realm in bind_dn)")
	}
	if p.Username == "" {
		return p, fmt.Errorf("username (principal) is required for Kerberos authentication")
	}
	return p, nil
}

// performKerberosAuth performs a GSSAPI bind on conn.
func performKerberosAuth(ctx context.Context, conn ldapConn, cfg *ConnectionConfig, server *ServerInfo) error {
	principal, err := resolvePrincipal(cfg)
	if err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, source, err := createGSSAPIClient(cfg, principal)
	if err != nil {
		LogKerberosEvent(ctx, "authentication_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()
	LogKerberosEvent(ctx, "ticket_acquired", map[string]any{
		"principal": principal.Username + "@" + principal.Realm,
		"source":    source,
	})

	spn, err := buildServicePrincipal(cfg, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		LogKerberosEvent(ctx, "authentication_failed", map[string]any{"spn": spn, "error": err.Error()})
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient creates a GSSAPI client from the first usable credential
// source: explicit credential cache, keytab, then password.
func createGSSAPIClient(cfg *ConnectionConfig, p kerberosPrincipal) (ldap.GSSAPIClient, string, error) {
	krb5confPath := cfg.KerberosConfig
	if krb5confPath == "" {
		krb5confPath = defaultKrb5Conf
	}

	if !fileExists(krb5confPath) {
		return nil, "", fmt.Errorf("kerberos configuration file not found at %s", krb5confPath)
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		c, err := gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
		return c, "ccache", err
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		c, err := gssapi.NewClientWithKeytab(p.Username, p.Realm, cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
		return c, "keytab", err
	}

	if cfg.Password != "" {
		c, err := gssapi.NewClientWithPassword(p.Username, p.Realm, cfg.Password, krb5confPath, krb5client.DisablePAFXFAST(true))
		return c, "password", err
	}

	return nil, "", fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal constructs the LDAP service principal name for the
// connected server. cfg.KerberosSPN overrides it.
func buildServicePrincipal(cfg *ConnectionConfig, server *ServerInfo) (string, error) {
	if cfg != nil && cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + server.Host, nil
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}
