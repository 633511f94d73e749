package plugin

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/identity-from-directory/internal/identity"
	"github.com/isometry/identity-from-directory/internal/ldap"
)

// Directory looks login names up in the directory.
type Directory interface {
	Search(ctx context.Context, fields []string, term string, exact bool) ([]identity.Record, error)
	Close() error
}

// DirectoryOpener creates the directory handle for one login.
type DirectoryOpener func(ctx context.Context, vars ldap.LoginVars) (Directory, error)

// Session is the per-request state of the plugin. It owns the directory
// handle, which is opened on first use and closed when the login hook
// finishes.
type Session struct {
	ID string

	started bool
	dir     Directory
}

// NewSession returns a session with a fresh correlation id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

func (s *Session) directory(ctx context.Context, open DirectoryOpener, vars ldap.LoginVars) (Directory, error) {
	if s.dir != nil {
		return s.dir, nil
	}
	dir, err := open(ctx, vars)
	if err != nil {
		return nil, err
	}
	s.dir = dir
	return dir, nil
}

func (s *Session) closeDirectory(ctx context.Context) {
	if s.dir == nil {
		return
	}
	if err := s.dir.Close(); err != nil {
		tflog.SubsystemDebug(ctx, identity.Subsystem, "Failed to close directory", map[string]any{"error": err.Error()})
	}
	s.dir = nil
}
