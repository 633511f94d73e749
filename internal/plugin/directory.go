package plugin

import (
	"context"

	"github.com/isometry/identity-from-directory/internal/config"
	"github.com/isometry/identity-from-directory/internal/ldap"
)

// LDAPOpener returns a DirectoryOpener backed by the configured LDAP
// servers. The connection itself is made lazily by the first search.
func LDAPOpener(cfg *config.Config) DirectoryOpener {
	return func(ctx context.Context, vars ldap.LoginVars) (Directory, error) {
		cc, err := cfg.LDAP.ConnectionConfig()
		if err != nil {
			return nil, err
		}
		dc, err := cfg.LDAP.DirectoryConfig()
		if err != nil {
			return nil, err
		}
		client, err := ldap.NewClient(ctx, cc)
		if err != nil {
			return nil, err
		}
		return ldap.NewDirectory(client, dc, vars), nil
	}
}
