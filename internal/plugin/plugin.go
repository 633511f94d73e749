// Package plugin connects identity reconciliation to the login lifecycle:
// on login_after it looks the user up in the directory and brings the
// user's identities in line with it.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/identity-from-directory/internal/config"
	"github.com/isometry/identity-from-directory/internal/identity"
	"github.com/isometry/identity-from-directory/internal/ldap"
	"github.com/isometry/identity-from-directory/internal/metrics"
)

// Store is the host application's user and identity storage.
type Store interface {
	identity.IdentityStore
	EnsureUser(ctx context.Context, username string) (int64, error)
}

// Options configure a Plugin.
type Options struct {
	Config        *config.Config
	Store         Store
	OpenDirectory DirectoryOpener

	// Optional.
	Hooks   *Hooks
	Metrics *metrics.Metrics
	Washer  identity.Washer
}

// LoginArgs are the arguments of the login_after hook.
type LoginArgs struct {
	Username string

	// Result is filled in by LoginAfter.
	Result *Result
}

// Result describes what a login_after run did.
type Result struct {
	// Skipped is the reason nothing was synchronised, if any.
	Skipped string

	User      *identity.UserData
	Mutations []identity.Mutation
	// Outcomes holds the store error of each mutation, nil on success,
	// in the order of Mutations.
	Outcomes []error
	Report   identity.Report
}

// Plugin synchronises identities from the directory at login.
type Plugin struct {
	cfg      *config.Config
	store    Store
	open     DirectoryOpener
	metrics  *metrics.Metrics
	readyErr error

	excludeAlias *regexp.Regexp
	reconciler   *identity.Reconciler
}

// New builds a Plugin. A configuration that fails readiness does not make
// New fail: the plugin is built but every login skips synchronisation.
func New(opts Options) (*Plugin, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: no configuration", config.ErrInvalidConfig)
	}
	if opts.Store == nil {
		return nil, errors.New("identity store is required")
	}
	if opts.OpenDirectory == nil {
		return nil, errors.New("directory opener is required")
	}

	cfg := opts.Config
	p := &Plugin{
		cfg:     cfg,
		store:   opts.Store,
		open:    opts.OpenDirectory,
		metrics: opts.Metrics,
	}

	if p.readyErr = cfg.Ready(); p.readyErr != nil {
		return p, nil
	}

	// Ready has already compiled both patterns once.
	p.excludeAlias, _ = config.CompilePattern(cfg.ExcludeAliasRegex)
	excludeDelete, _ := config.CompilePattern(cfg.ExcludeDeleteUnmanagedRegex)

	p.reconciler = &identity.Reconciler{
		DeleteUnmanaged: cfg.DeleteUnmanaged,
		ExcludeDelete:   excludeDelete,
		Hook:            opts.Hooks.Reconcile(),
	}

	if cfg.UpdateSignatures {
		r := identity.NewSignatureRenderer(cfg.LDAP.Fieldmap, cfg.FallbackValues)
		r.PlainTemplate = cfg.SignatureTemplatePlaintext
		r.HTMLTemplate = cfg.SignatureTemplateHTML
		r.UseHTML = cfg.UseHTMLSignature
		r.WashHTML = cfg.WashHTMLSignature
		r.Washer = opts.Washer
		if r.Washer == nil {
			r.Washer = NewHTMLWasher()
		}
		p.reconciler.Signatures = r
	}

	return p, nil
}

// Ready reports whether logins will be synchronised.
func (p *Plugin) Ready() error {
	return p.readyErr
}

// LoginAfter handles the login_after hook. It never fails the login:
// problems are logged and recorded in the returned args' Result.
func (p *Plugin) LoginAfter(ctx context.Context, s *Session, args LoginArgs) LoginArgs {
	// the hook can fire more than once per request
	if s.started {
		return args
	}
	s.started = true

	ctx = initializeLogging(ctx, p.cfg.Debug, s.ID)
	defer s.closeDirectory(ctx)

	if p.readyErr != nil {
		tflog.SubsystemWarn(ctx, identity.Subsystem, "Identity sync disabled by configuration", map[string]any{
			"error": p.readyErr.Error(),
		})
		args.Result = &Result{Skipped: p.readyErr.Error()}
		return args
	}

	res, err := p.sync(ctx, s, args.Username)
	if err != nil {
		fields := map[string]any{
			"username":       args.Username,
			"error":          err.Error(),
			"error_category": string(ldap.GetErrorCategory(err)),
		}
		// bad bind credentials fail every login until the config is fixed
		if ldap.IsAuthenticationError(err) {
			tflog.SubsystemError(ctx, identity.Subsystem, "Directory rejected the bind credentials", fields)
		} else {
			tflog.SubsystemWarn(ctx, identity.Subsystem, "Identity sync failed", fields)
		}
		res.Skipped = err.Error()
	}
	args.Result = res
	return args
}

func (p *Plugin) sync(ctx context.Context, s *Session, username string) (*Result, error) {
	res := &Result{}

	dir, err := s.directory(ctx, p.open, ldap.NewLoginVars(username, p.cfg.MailDomain))
	if err != nil {
		p.metrics.ObserveLookup(metrics.LookupError, 0)
		return res, fmt.Errorf("opening directory: %w", err)
	}

	user, err := p.lookup(ctx, dir, username)
	if err != nil {
		return res, err
	}
	if user == nil {
		res.Skipped = "no directory data"
		return res, nil
	}
	res.User = user

	userID, err := p.store.EnsureUser(ctx, username)
	if err != nil {
		return res, err
	}
	existing, err := p.store.ListIdentities(ctx, userID)
	if err != nil {
		return res, err
	}

	res.Mutations = p.reconciler.Plan(ctx, identity.PlanInput{
		Username: username,
		User:     user,
		Existing: existing,
	})

	applier := &identity.Applier{
		Store:  p.store,
		UserID: userID,
		Observe: func(m identity.Mutation, err error) {
			res.Outcomes = append(res.Outcomes, err)
			p.metrics.ObserveMutation(m, err)
		},
	}
	res.Report = applier.Apply(ctx, res.Mutations)
	if res.Report.Err != nil {
		tflog.SubsystemWarn(ctx, identity.Subsystem, "Some identity changes failed", map[string]any{
			"username": username,
			"failed":   res.Report.Failed,
			"error":    res.Report.Err.Error(),
		})
	}

	tflog.SubsystemInfo(ctx, identity.Subsystem, "Identities synchronised", map[string]any{
		"username": username,
		"created":  res.Report.Created,
		"updated":  res.Report.Updated,
		"deleted":  res.Report.Deleted,
		"failed":   res.Report.Failed,
	})

	return res, nil
}

// lookup searches the directory for the login and derives its user data.
// A nil result without error means there is no usable directory record.
func (p *Plugin) lookup(ctx context.Context, dir Directory, username string) (*identity.UserData, error) {
	start := time.Now()
	records, err := dir.Search(ctx, []string{ldap.AllFields}, username, true)
	if err != nil {
		p.metrics.ObserveLookup(metrics.LookupError, time.Since(start))
		return nil, fmt.Errorf("directory search: %w", err)
	}

	extract := identity.ExtractOptions{HandleProxyAddresses: p.cfg.HandleProxyAddresses}
	collect := identity.CollectOptions{
		HandleProxyAddresses: p.cfg.HandleProxyAddresses,
		ExcludeAlias:         p.excludeAlias,
		OnReject: func(candidate string, reason identity.RejectReason) {
			tflog.SubsystemDebug(ctx, identity.Subsystem, "Alias skipped", map[string]any{
				"alias":  candidate,
				"reason": string(reason),
			})
			p.metrics.RejectAlias(candidate, reason)
		},
	}

	user, err := identity.UserDataFromResults(records, extract, collect)
	switch {
	case errors.Is(err, identity.ErrAmbiguousMatch):
		p.metrics.ObserveLookup(metrics.LookupAmbiguous, time.Since(start))
		tflog.SubsystemDebug(ctx, identity.Subsystem, "Ambiguous directory match, leaving identities alone", map[string]any{
			"username": username,
			"records":  len(records),
		})
		return nil, nil
	case user == nil:
		p.metrics.ObserveLookup(metrics.LookupNotFound, time.Since(start))
		tflog.SubsystemDebug(ctx, identity.Subsystem, "No directory record for login", map[string]any{"username": username})
		return nil, nil
	}

	p.metrics.ObserveLookup(metrics.LookupFound, time.Since(start))
	tflog.SubsystemDebug(ctx, identity.Subsystem, "Directory record found", map[string]any{
		"username": username,
		"name":     user.Name,
		"primary":  user.PrimaryEmail,
		"emails":   user.Emails,
	})
	return user, nil
}
