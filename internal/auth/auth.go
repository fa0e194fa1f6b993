// Package auth defines the credential store contract (spec.md §4.8) and a
// SQLite-backed implementation grounded on store/store.go's migration
// pattern.
package auth

import (
	"errors"

	"github.com/Takeiteasyeh/chatd/internal/options"
)

// ErrNotFound is returned by lookups when no matching user exists.
var ErrNotFound = errors.New("auth: user not found")

// ErrAlreadyExists is returned by Add when the username is taken.
var ErrAlreadyExists = errors.New("auth: username already exists")

// Record is one stored credential. Permissions is the §4.8 auth entry's
// permissions field — the ClientOptions bitfield an authenticated agent is
// granted verbatim (original_source/chatd/src/commands.rs:363
// set_options_u64(userauth.permissions)).
type Record struct {
	Username     string
	PasswordHash string
	Permissions  options.Client
}

// Finder is the credential store contract used by internal/dispatch's
// AuthAgent handler. A SQLite-backed implementation is provided by
// SQLiteFinder; tests may supply an in-memory fake.
type Finder interface {
	// ByUsernamePassword looks up a user and verifies pass against the
	// stored hash in one call, returning ErrNotFound on either a missing
	// username or a mismatched password (the two cases are deliberately
	// not distinguished, so a brute-force attempt can't enumerate valid
	// usernames from error shape alone).
	ByUsernamePassword(username, pass string) (Record, error)

	// ByUsername looks up a user by name only, without checking a password.
	ByUsername(username string) (Record, error)

	// Add inserts a new user with the given plaintext password, which is
	// hashed before storage, and the ClientOptions bitfield the user should
	// be granted on successful auth (spec.md §4.8 permissions). Returns
	// ErrAlreadyExists if username is taken.
	Add(username, pass string, permissions options.Client) error

	// HasAny reports whether the store has at least one user.
	HasAny() (bool, error)
}

// CreateTablesResult is the tri-state outcome of CreateTables, matching
// original_source/chatd/src/auth.rs's create_tables return convention.
type CreateTablesResult int8

const (
	// TablesCreated means the schema did not exist and was just created.
	TablesCreated CreateTablesResult = 1
	// TablesAlreadyPresent means the schema already existed; no change made.
	TablesAlreadyPresent CreateTablesResult = 18
	// TablesError means table creation was attempted and failed.
	TablesError CreateTablesResult = -1
)
