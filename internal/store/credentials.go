package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credential is a stored session token and the claims read from it.
type Credential struct {
	Name      string
	Token     string
	Subject   string
	Role      int
	ExpiresAt time.Time // zero when the token carries no expiry
	UpdatedAt time.Time
}

// CredentialStore keeps named session tokens.
type CredentialStore struct {
	db *DB
}

// NewCredentialStore creates a credential store using the given database.
func NewCredentialStore(db *DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get returns the credential stored under name. ok is false when there is none.
func (s *CredentialStore) Get(name string) (cred Credential, ok bool, err error) {
	var expiresAt, updatedAt string
	err = s.db.sql.QueryRow(
		`SELECT name, token, subject, role, expires_at, updated_at
		 FROM credentials WHERE name = ?`, name,
	).Scan(&cred.Name, &cred.Token, &cred.Subject, &cred.Role, &expiresAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("reading credential %q: %w", name, err)
	}

	if expiresAt != "" {
		cred.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	}
	cred.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return cred, true, nil
}

// Put inserts or replaces the credential with the same name.
func (s *CredentialStore) Put(cred Credential) error {
	var expiresAt string
	if !cred.ExpiresAt.IsZero() {
		expiresAt = cred.ExpiresAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.sql.Exec(
		`INSERT INTO credentials (name, token, subject, role, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   token = excluded.token,
		   subject = excluded.subject,
		   role = excluded.role,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		cred.Name, cred.Token, cred.Subject, cred.Role, expiresAt,
		time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("storing credential %q: %w", cred.Name, err)
	}
	return nil
}

// Delete removes the credential stored under name. Deleting a missing
// credential is not an error.
func (s *CredentialStore) Delete(name string) error {
	if _, err := s.db.sql.Exec("DELETE FROM credentials WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting credential %q: %w", name, err)
	}
	return nil
}
