package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/identity-from-directory/internal/identity"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.EnsureUser(ctx, "alice@contoso.com")
	require.NoError(t, err)

	again, err := s.EnsureUser(ctx, "Alice@Contoso.com")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := s.EnsureUser(ctx, "bob@contoso.com")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	_, err = s.EnsureUser(ctx, "")
	assert.Error(t, err)
}

func TestInsertIdentity_SingleStandard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	first, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "alice@contoso.com", Name: "Alice", Standard: true})
	require.NoError(t, err)
	second, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "a@contoso.com", Name: "Alice", Standard: true})
	require.NoError(t, err)

	rows, err := s.Identities(ctx, uid)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second, rows[0].ID, "standard identity sorts first")
	assert.True(t, rows[0].Standard)
	assert.Equal(t, first, rows[1].ID)
	assert.False(t, rows[1].Standard)

	_, err = s.InsertIdentity(ctx, uid, identity.IdentityRecord{Name: "no address"})
	assert.Error(t, err)
}

func TestUpdateIdentity_Signature(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	id, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{
		Email:         "alice@contoso.com",
		SetSignature:  true,
		Signature:     "<b>Alice</b>",
		HTMLSignature: true,
	})
	require.NoError(t, err)

	// without SetSignature the stored signature is kept
	require.NoError(t, s.UpdateIdentity(ctx, id, identity.IdentityRecord{
		Email:        "alice@contoso.com",
		Name:         "Alice Smith",
		Organization: "Contoso",
	}))

	rows, err := s.Identities(ctx, uid)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice Smith", rows[0].Name)
	assert.Equal(t, "Contoso", rows[0].Organization)
	assert.Equal(t, "<b>Alice</b>", rows[0].Signature)
	assert.True(t, rows[0].HTMLSignature)

	require.NoError(t, s.UpdateIdentity(ctx, id, identity.IdentityRecord{
		Email:        "alice@contoso.com",
		SetSignature: true,
		Signature:    "-- Alice",
	}))

	rows, err = s.Identities(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "-- Alice", rows[0].Signature)
	assert.False(t, rows[0].HTMLSignature)

	err = s.UpdateIdentity(ctx, id+100, identity.IdentityRecord{Email: "x@contoso.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateIdentity_Standard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	a, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "a@contoso.com", Standard: true})
	require.NoError(t, err)
	b, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "b@contoso.com"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateIdentity(ctx, b, identity.IdentityRecord{Email: "b@contoso.com", Standard: true}))

	rows, err := s.Identities(ctx, uid)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, b, rows[0].ID)
	assert.True(t, rows[0].Standard)
	assert.Equal(t, a, rows[1].ID)
	assert.False(t, rows[1].Standard)
}

func TestDeleteIdentity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	a, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "a@contoso.com"})
	require.NoError(t, err)
	b, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "b@contoso.com"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteIdentity(ctx, a))
	assert.ErrorIs(t, s.DeleteIdentity(ctx, a), ErrNotFound, "deleted identities are gone")
	assert.ErrorIs(t, s.DeleteIdentity(ctx, b), ErrLastIdentity)

	existing, err := s.ListIdentities(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, []identity.Existing{{ID: b, Email: "b@contoso.com"}}, existing)
}

func TestApplierAgainstStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	old, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "old@contoso.com", Standard: true})
	require.NoError(t, err)
	other, err := s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "Alice@CONTOSO.com"})
	require.NoError(t, err)

	existing, err := s.ListIdentities(ctx, uid)
	require.NoError(t, err)

	r := &identity.Reconciler{DeleteUnmanaged: true}
	plan := r.Plan(ctx, identity.PlanInput{
		Username: "alice",
		User: &identity.UserData{
			Name:         "Alice",
			PrimaryEmail: "alice@contoso.com",
			Emails:       []string{"alice@contoso.com", "a.smith@contoso.com"},
		},
		Existing: existing,
	})

	rep := (&identity.Applier{Store: s, UserID: uid}).Apply(ctx, plan)
	require.NoError(t, rep.Err)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 1, rep.Deleted)

	rows, err := s.Identities(ctx, uid)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, other, rows[0].ID)
	assert.Equal(t, "alice@contoso.com", rows[0].Email)
	assert.True(t, rows[0].Standard)
	assert.Equal(t, "a.smith@contoso.com", rows[1].Email)
	assert.NotEqual(t, old, rows[1].ID)
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identities.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	uid, err := s.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	_, err = s.InsertIdentity(ctx, uid, identity.IdentityRecord{Email: "alice@contoso.com"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	existing, err := s.ListIdentities(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, existing, 1)
}
