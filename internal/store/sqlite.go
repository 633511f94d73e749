package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/isometry/identity-from-directory/internal/identity"
)

var (
	// ErrNotFound is returned for unknown or deleted identities.
	ErrNotFound = errors.New("identity not found")

	// ErrLastIdentity is returned when a delete would leave a user without
	// any identity.
	ErrLastIdentity = errors.New("cannot delete the last identity of a user")
)

// Identity is a stored identity row.
type Identity struct {
	ID            int64     `db:"identity_id"`
	UserID        int64     `db:"user_id"`
	Changed       time.Time `db:"changed"`
	Standard      bool      `db:"standard"`
	Name          string    `db:"name"`
	Organization  string    `db:"organization"`
	Email         string    `db:"email"`
	Signature     string    `db:"signature"`
	HTMLSignature bool      `db:"html_signature"`
}

// SQLiteStore keeps users and their identities in a SQLite database. It
// implements identity.IdentityStore.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ identity.IdentityStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and runs any
// pending schema migrations. ":memory:" gives a private in-memory store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: SQLite has a single writer and every :memory:
	// connection would otherwise see its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	current := 0

	var tables int
	err := s.db.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// EnsureUser returns the id of username, creating the user if needed.
// Usernames are compared case-insensitively.
func (s *SQLiteStore) EnsureUser(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, fmt.Errorf("username must not be empty")
	}

	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO users (username) VALUES (?)", username); err != nil {
		return 0, fmt.Errorf("creating user %s: %w", username, err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, "SELECT user_id FROM users WHERE username = ?", username); err != nil {
		return 0, fmt.Errorf("looking up user %s: %w", username, err)
	}
	return id, nil
}

// Identities returns a user's live identities, standard first, then by
// name and address.
func (s *SQLiteStore) Identities(ctx context.Context, userID int64) ([]Identity, error) {
	var out []Identity
	err := s.db.SelectContext(ctx, &out, `
		SELECT identity_id, user_id, changed, standard, name, organization,
		       email, signature, html_signature
		FROM identities
		WHERE user_id = ? AND del = 0
		ORDER BY standard DESC, name ASC, email ASC, identity_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing identities for user %d: %w", userID, err)
	}
	return out, nil
}

// ListIdentities returns the snapshot the reconciler works on.
func (s *SQLiteStore) ListIdentities(ctx context.Context, userID int64) ([]identity.Existing, error) {
	rows, err := s.Identities(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]identity.Existing, len(rows))
	for i, r := range rows {
		out[i] = identity.Existing{ID: r.ID, Email: r.Email, Name: r.Name}
	}
	return out, nil
}

// InsertIdentity stores a new identity and returns its id. A standard
// identity clears the flag on the user's other identities.
func (s *SQLiteStore) InsertIdentity(ctx context.Context, userID int64, rec identity.IdentityRecord) (int64, error) {
	if rec.Email == "" {
		return 0, fmt.Errorf("identity email must not be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if rec.Standard {
		if err := clearStandard(ctx, tx, userID, 0); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO identities (
			user_id, changed, standard, name, organization, email, signature, html_signature
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, time.Now().UTC(), boolToInt(rec.Standard), rec.Name, rec.Organization, rec.Email,
		rec.Signature, boolToInt(rec.SetSignature && rec.HTMLSignature),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting identity %s: %w", rec.Email, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading identity id: %w", err)
	}

	return id, tx.Commit()
}

// UpdateIdentity overwrites a live identity. Signature columns are only
// written when rec.SetSignature is true.
func (s *SQLiteStore) UpdateIdentity(ctx context.Context, id int64, rec identity.IdentityRecord) error {
	if rec.Email == "" {
		return fmt.Errorf("identity email must not be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	userID, err := liveOwner(ctx, tx, id)
	if err != nil {
		return err
	}

	if rec.Standard {
		if err := clearStandard(ctx, tx, userID, id); err != nil {
			return err
		}
	}

	query := `UPDATE identities SET changed = ?, standard = ?, name = ?, organization = ?, email = ?`
	args := []any{time.Now().UTC(), boolToInt(rec.Standard), rec.Name, rec.Organization, rec.Email}
	if rec.SetSignature {
		query += `, signature = ?, html_signature = ?`
		args = append(args, rec.Signature, boolToInt(rec.HTMLSignature))
	}
	query += ` WHERE identity_id = ?`
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating identity %d: %w", id, err)
	}

	return tx.Commit()
}

// DeleteIdentity marks an identity deleted. The last live identity of a
// user is never removed.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	userID, err := liveOwner(ctx, tx, id)
	if err != nil {
		return err
	}

	var live int
	if err := tx.GetContext(ctx, &live, "SELECT COUNT(*) FROM identities WHERE user_id = ? AND del = 0", userID); err != nil {
		return fmt.Errorf("counting identities for user %d: %w", userID, err)
	}
	if live <= 1 {
		return ErrLastIdentity
	}

	_, err = tx.ExecContext(ctx, "UPDATE identities SET del = 1, standard = 0, changed = ? WHERE identity_id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deleting identity %d: %w", id, err)
	}

	return tx.Commit()
}

func liveOwner(ctx context.Context, tx *sqlx.Tx, id int64) (int64, error) {
	var userIDs []int64
	if err := tx.SelectContext(ctx, &userIDs, "SELECT user_id FROM identities WHERE identity_id = ? AND del = 0", id); err != nil {
		return 0, fmt.Errorf("looking up identity %d: %w", id, err)
	}
	if len(userIDs) == 0 {
		return 0, fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	return userIDs[0], nil
}

func clearStandard(ctx context.Context, tx *sqlx.Tx, userID, except int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE identities SET standard = 0 WHERE user_id = ? AND identity_id <> ? AND standard = 1",
		userID, except,
	)
	if err != nil {
		return fmt.Errorf("clearing standard identity for user %d: %w", userID, err)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
