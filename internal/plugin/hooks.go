package plugin

import (
	"context"
	"sync"

	"github.com/isometry/identity-from-directory/internal/identity"
)

// Hook names offered to extensions before an identity is written.
const (
	HookIdentityCreate = "identity_create"
	HookIdentityUpdate = "identity_update"
)

// HookArgs is passed through the handlers of a hook. ID is zero for
// creates. A handler sets Abort to veto the change or edits Record to
// rewrite it.
type HookArgs struct {
	ID     int64
	Record identity.IdentityRecord
	Abort  bool
}

// HookFunc handles one hook invocation.
type HookFunc func(ctx context.Context, args HookArgs) HookArgs

// Hooks is a registry of hook handlers, run in registration order.
type Hooks struct {
	mu       sync.RWMutex
	handlers map[string][]HookFunc
}

// NewHooks returns an empty registry.
func NewHooks() *Hooks {
	return &Hooks{handlers: make(map[string][]HookFunc)}
}

// Register adds fn to the handlers of the named hook.
func (h *Hooks) Register(name string, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[name] = append(h.handlers[name], fn)
}

// Exec runs the handlers of the named hook. Processing stops at the first
// handler that aborts.
func (h *Hooks) Exec(ctx context.Context, name string, args HookArgs) HookArgs {
	if h == nil {
		return args
	}

	h.mu.RLock()
	handlers := h.handlers[name]
	h.mu.RUnlock()

	for _, fn := range handlers {
		args = fn(ctx, args)
		if args.Abort {
			break
		}
	}
	return args
}

// Reconcile adapts the registry to the reconciler's hook.
func (h *Hooks) Reconcile() identity.Hook {
	return func(ctx context.Context, m identity.Mutation) identity.Decision {
		name := HookIdentityCreate
		if m.Action == identity.ActionUpdate {
			name = HookIdentityUpdate
		}
		out := h.Exec(ctx, name, HookArgs{ID: m.ID, Record: m.Record})
		return identity.Decision{Abort: out.Abort, Record: out.Record}
	}
}
