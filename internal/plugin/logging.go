package plugin

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/identity-from-directory/internal/identity"
	"github.com/isometry/identity-from-directory/internal/ldap"
)

// EnvLogLDAP overrides the level of the ldap log subsystem.
const EnvLogLDAP = "IDENTITY_SYNC_LOG_LDAP"

// initializeLogging sets up the log subsystems for one login. The identity
// subsystem logs at DEBUG when debug is on and at WARN otherwise.
func initializeLogging(ctx context.Context, debug bool, loginID string) context.Context {
	level := hclog.Warn
	if debug {
		level = hclog.Debug
	}

	ctx = tflog.SetField(ctx, "login_id", loginID)
	ctx = tflog.NewSubsystem(ctx, identity.Subsystem, tflog.WithLevel(level), tflog.WithRootFields())
	ctx = tflog.NewSubsystem(ctx, ldap.Subsystem, tflog.WithLevelFromEnv(EnvLogLDAP), tflog.WithRootFields())
	return ctx
}
