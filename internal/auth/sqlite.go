package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/Takeiteasyeh/chatd/internal/options"
)

// migrations holds the ordered schema statements, applied exactly once each
// and tracked in schema_migrations — the same convention as
// store/store.go. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — users
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		permissions INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
}

// SQLiteFinder is the on-disk Finder implementation.
type SQLiteFinder struct {
	db   *sql.DB
	salt string
}

// NewSQLiteFinder opens (or creates) the SQLite database at path, applies
// pending migrations, and returns a Finder salted with salt (spec.md §6
// auth_salt). Use ":memory:" for ephemeral storage in tests.
func NewSQLiteFinder(path, salt string) (*SQLiteFinder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[auth] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[auth] busy_timeout: %v (non-fatal)", err)
	}

	f := &SQLiteFinder{db: db, salt: salt}
	if res := f.CreateTables(); res == TablesError {
		db.Close()
		return nil, fmt.Errorf("create tables: migration failed")
	}
	return f, nil
}

// Close releases the database connection.
func (f *SQLiteFinder) Close() error { return f.db.Close() }

// CreateTables applies any pending migration, returning TablesCreated,
// TablesAlreadyPresent, or TablesError — matching original_source/chatd's
// tri-state create_tables.
func (f *SQLiteFinder) CreateTables() CreateTablesResult {
	if _, err := f.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		log.Printf("[auth] create schema_migrations: %v", err)
		return TablesError
	}

	var current int
	if err := f.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		log.Printf("[auth] read schema version: %v", err)
		return TablesError
	}

	if current >= len(migrations) {
		return TablesAlreadyPresent
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := f.db.Exec(stmt); err != nil {
			log.Printf("[auth] migration %d: %v", v, err)
			return TablesError
		}
		if _, err := f.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			log.Printf("[auth] record migration %d: %v", v, err)
			return TablesError
		}
		log.Printf("[auth] applied migration v%d", v)
	}
	return TablesCreated
}

// HashPassword computes sha256(pass + "+" + salt) hex-encoded — the exact
// algorithm used by original_source/chatd/src/auth.rs's hash_password.
func HashPassword(pass, salt string) string {
	sum := sha256.Sum256([]byte(pass + "+" + salt))
	return hex.EncodeToString(sum[:])
}

func (f *SQLiteFinder) ByUsernamePassword(username, pass string) (Record, error) {
	rec, err := f.ByUsername(username)
	if err != nil {
		return Record{}, err
	}
	if rec.PasswordHash != HashPassword(pass, f.salt) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *SQLiteFinder) ByUsername(username string) (Record, error) {
	var rec Record
	var perms uint64
	err := f.db.QueryRow(
		`SELECT username, password_hash, permissions FROM users WHERE username = ?`, username,
	).Scan(&rec.Username, &rec.PasswordHash, &perms)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.Permissions = options.ClientFromWire(perms)
	return rec, nil
}

func (f *SQLiteFinder) Add(username, pass string, permissions options.Client) error {
	if _, err := f.ByUsername(username); err == nil {
		return ErrAlreadyExists
	} else if err != ErrNotFound {
		return err
	}
	_, err := f.db.Exec(
		`INSERT INTO users(username, password_hash, permissions) VALUES(?, ?, ?)`,
		username, HashPassword(pass, f.salt), uint64(permissions),
	)
	return err
}

func (f *SQLiteFinder) HasAny() (bool, error) {
	var count int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnsureAdmin seeds a single "admin" account, granted permissions, with a
// random 7-digit password the first time the store has no users at all,
// printing the generated password once so the operator can retrieve it
// (spec.md §6 "first run"). A store that already has any user is left
// untouched.
func (f *SQLiteFinder) EnsureAdmin(permissions options.Client) error {
	has, err := f.HasAny()
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	pass, err := randomDigits(7)
	if err != nil {
		return err
	}
	if err := f.Add("admin", pass, permissions|options.ClientAdmin); err != nil {
		return err
	}
	log.Printf("[auth] created initial admin account, username=admin password=%s (shown once)", pass)
	return nil
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = '0' + b%10
	}
	return string(out), nil
}
