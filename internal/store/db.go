// Package store persists accounts, contacts, groups and messages in SQLite.
// Every exported operation is a single self-contained statement.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrAccountNotFound is returned when an operation targets an unknown account.
var ErrAccountNotFound = errors.New("account not found")

// ErrInvalidAccountID is returned for account ids that fail validation.
var ErrInvalidAccountID = errors.New("invalid account id")

var accountIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidateAccountID checks that id is usable as an account key.
func ValidateAccountID(id string) error {
	if !accountIDRegexp.MatchString(id) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidAccountID, id, accountIDRegexp)
	}
	return nil
}

// DB wraps the SQLite connection pool.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode, a busy timeout and
// foreign keys enforced (cascading account deletes depend on it).
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

func now() int64 {
	return time.Now().Unix()
}
