package identity

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// IdentityStore is the host application's identity storage.
type IdentityStore interface {
	ListIdentities(ctx context.Context, userID int64) ([]Existing, error)
	InsertIdentity(ctx context.Context, userID int64, rec IdentityRecord) (int64, error)
	UpdateIdentity(ctx context.Context, id int64, rec IdentityRecord) error
	DeleteIdentity(ctx context.Context, id int64) error
}

// Report summarises an Apply run.
type Report struct {
	Created int
	Updated int
	Deleted int
	Failed  int

	// Err aggregates store failures. It is a warning: the login proceeds.
	Err error
}

// Applier hands mutations to an IdentityStore on behalf of one user.
type Applier struct {
	Store  IdentityStore
	UserID int64

	// Observe, when set, is called once per mutation with its outcome.
	Observe func(m Mutation, err error)
}

// Apply runs every mutation in order. A failing mutation does not stop the
// remaining ones.
func (a *Applier) Apply(ctx context.Context, mutations []Mutation) Report {
	var (
		rep  Report
		errs *multierror.Error
	)

	for _, m := range mutations {
		err := a.apply(ctx, m)
		if a.Observe != nil {
			a.Observe(m, err)
		}

		fields := map[string]any{
			"action":      m.Action.String(),
			"email":       m.Record.Email,
			"identity_id": m.ID,
		}
		if err != nil {
			rep.Failed++
			fields["error"] = err.Error()
			tflog.SubsystemWarn(ctx, Subsystem, "Identity change failed", fields)
			errs = multierror.Append(errs, fmt.Errorf("%s identity %q: %w", m.Action, m.Record.Email, err))
			continue
		}

		switch m.Action {
		case ActionCreate:
			rep.Created++
		case ActionUpdate:
			rep.Updated++
		case ActionDelete:
			rep.Deleted++
		}
		tflog.SubsystemDebug(ctx, Subsystem, "Identity change applied", fields)
	}

	rep.Err = errs.ErrorOrNil()
	return rep
}

func (a *Applier) apply(ctx context.Context, m Mutation) error {
	switch m.Action {
	case ActionCreate:
		rec := m.Record
		rec.UserID = a.UserID
		_, err := a.Store.InsertIdentity(ctx, a.UserID, rec)
		return err
	case ActionUpdate:
		rec := m.Record
		rec.UserID = a.UserID
		return a.Store.UpdateIdentity(ctx, m.ID, rec)
	case ActionDelete:
		return a.Store.DeleteIdentity(ctx, m.ID)
	default:
		return fmt.Errorf("unknown action %d", m.Action)
	}
}
