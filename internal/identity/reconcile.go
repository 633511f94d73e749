package identity

import (
	"context"
	"regexp"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Subsystem is the tflog subsystem used for reconciliation diagnostics.
const Subsystem = "identity"

// IdentityRecord is a mail identity as kept by the identity store.
// ID 0 means the identity has not been created yet.
type IdentityRecord struct {
	ID           int64
	UserID       int64
	Email        string
	Name         string
	Organization string
	Standard     bool

	// Signature and HTMLSignature are only written when SetSignature is true.
	SetSignature  bool
	Signature     string
	HTMLSignature bool
}

// Field returns the record's value for a fieldmap key.
func (r IdentityRecord) Field(key string) string {
	switch strings.ToLower(key) {
	case FamilyName:
		return r.Name
	case FamilyEmail:
		return r.Email
	case "organization":
		return r.Organization
	}
	return ""
}

// Existing is one entry of the identity snapshot read at the start of a
// login.
type Existing struct {
	ID    int64
	Email string
	Name  string
}

// Action is the kind of a Mutation.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation is a single change the reconciler wants applied to the identity
// store. Deletes carry the stored address in Record for diagnostics only.
type Mutation struct {
	Action Action
	ID     int64
	Record IdentityRecord
}

// Decision is a hook's verdict on a create or update. Record replaces the
// proposed record unless Abort is set.
type Decision struct {
	Abort  bool
	Record IdentityRecord
}

// Hook is consulted before every create and update.
type Hook func(ctx context.Context, m Mutation) Decision

// PlanInput is everything the reconciler needs for one login.
type PlanInput struct {
	Username string
	User     *UserData
	Existing []Existing
}

// Reconciler diffs directory addresses against existing identities.
type Reconciler struct {
	// Signatures is nil when signature updates are disabled.
	Signatures *SignatureRenderer

	DeleteUnmanaged bool
	// ExcludeDelete is matched against the stored address as is.
	ExcludeDelete *regexp.Regexp

	Hook Hook
}

// Plan returns the mutations that bring the identity store in line with the
// user's directory addresses: creates and updates in email_list order,
// followed by deletes of unmanaged identities.
func (r *Reconciler) Plan(ctx context.Context, in PlanInput) []Mutation {
	// no directory addresses means no directory data: leave identities alone
	if in.User == nil || len(in.User.Emails) == 0 {
		return nil
	}

	existing := make([]string, len(in.Existing))
	for i, e := range in.Existing {
		existing[i] = e.Email
	}

	var (
		out         []Mutation
		standardSet bool
	)

	for _, email := range in.User.Emails {
		rec := IdentityRecord{
			Email:        email,
			Name:         in.User.Name,
			Organization: in.User.Extra["organization"],
		}
		if rec.Name == "" {
			rec.Name = in.Username
		}
		if !standardSet && in.User.PrimaryEmail != "" && EqualEmails(email, in.User.PrimaryEmail) {
			rec.Standard = true
			standardSet = true
		}
		if r.Signatures != nil {
			rec.SetSignature = true
			rec.HTMLSignature = r.Signatures.UseHTML
			rec.Signature = r.Signatures.Render(in.User, email, rec)
		}

		m := Mutation{Action: ActionCreate, Record: rec}
		if i := IndexEmail(existing, email); i >= 0 {
			m.Action = ActionUpdate
			m.ID = in.Existing[i].ID
			m.Record.ID = m.ID
		}

		if r.Hook != nil {
			d := r.Hook(ctx, m)
			if d.Abort {
				tflog.SubsystemDebug(ctx, Subsystem, "Identity change aborted by hook", map[string]any{
					"action": m.Action.String(),
					"email":  email,
				})
				continue
			}
			m.Record = d.Record
			m.Record.ID = m.ID
		}
		if m.Record.Email == "" {
			continue
		}
		out = append(out, m)
	}

	if r.DeleteUnmanaged {
		out = append(out, r.planDeletes(ctx, in)...)
	}

	return out
}

func (r *Reconciler) planDeletes(ctx context.Context, in PlanInput) []Mutation {
	var out []Mutation
	remaining := len(in.Existing)

	for _, e := range in.Existing {
		if ContainsEmail(in.User.Emails, e.Email) {
			continue
		}
		fields := map[string]any{"email": e.Email, "identity_id": e.ID}
		if remaining <= 1 {
			tflog.SubsystemDebug(ctx, Subsystem, "Keeping last remaining identity", fields)
			continue
		}
		if r.ExcludeDelete != nil && r.ExcludeDelete.MatchString(e.Email) {
			tflog.SubsystemDebug(ctx, Subsystem, "Unmanaged identity excluded from deletion", fields)
			continue
		}
		out = append(out, Mutation{
			Action: ActionDelete,
			ID:     e.ID,
			Record: IdentityRecord{ID: e.ID, Email: e.Email, Name: e.Name},
		})
		remaining--
	}

	return out
}
