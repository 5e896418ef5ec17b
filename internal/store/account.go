package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const accountColumns = `id, name, phone_number, auth_state, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.PhoneNumber, &a.AuthState, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts an account, or refreshes the name and update time of
// an existing one.
func (db *DB) CreateAccount(id string, name *string) (*Account, error) {
	if err := ValidateAccountID(id); err != nil {
		return nil, err
	}
	ts := now()
	if _, err := db.Exec(`
		INSERT INTO accounts (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`,
		id, name, ts, ts); err != nil {
		return nil, fmt.Errorf("create account %q: %w", id, err)
	}
	return db.GetAccount(id)
}

// GetAccount returns ErrAccountNotFound when id is unknown.
func (db *DB) GetAccount(id string) (*Account, error) {
	a, err := scanAccount(db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %q: %w", id, err)
	}
	return a, nil
}

// ListAccounts returns all accounts, oldest first.
func (db *DB) ListAccounts() ([]Account, error) {
	rows, err := db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account together with its contacts, groups and
// messages.
func (db *DB) DeleteAccount(id string) error {
	res, err := db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account %q: %w", id, err)
	}
	return requireRow(res)
}

// SaveAuthState stores the engine credential blob for an account.
func (db *DB) SaveAuthState(id, authState string) error {
	res, err := db.Exec(`UPDATE accounts SET auth_state = ?, updated_at = ? WHERE id = ?`, authState, now(), id)
	if err != nil {
		return fmt.Errorf("save auth state %q: %w", id, err)
	}
	return requireRow(res)
}

// AuthState returns the stored credential blob, or nil if the account has
// never been paired.
func (db *DB) AuthState(id string) (*string, error) {
	a, err := db.GetAccount(id)
	if err != nil {
		return nil, err
	}
	return a.AuthState, nil
}

// SetAccountPhone records the phone number reported on connect. A nil phone
// keeps the stored value.
func (db *DB) SetAccountPhone(id string, phone *string) error {
	res, err := db.Exec(`
		UPDATE accounts SET
			phone_number = COALESCE(?, phone_number),
			updated_at = ?
		WHERE id = ?`, phone, now(), id)
	if err != nil {
		return fmt.Errorf("set phone %q: %w", id, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
