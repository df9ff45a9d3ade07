// Package session keeps the client's session token: the credential the
// connection presents on dial and discards when the server rejects it.
package session

import (
	"sync"
	"time"

	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/store"
)

// DefaultName is the credential name used for the single client session.
const DefaultName = "default"

// Store holds the current session artifact.
type Store interface {
	// CurrentSessionArtifact returns the token to present, if there is a
	// usable one. Expired tokens are not returned.
	CurrentSessionArtifact() (string, bool)
	// DiscardSessionArtifact forgets the token.
	DiscardSessionArtifact()
	// Replace stores a new token.
	Replace(token string) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	token string
	now   func() time.Time
}

// NewMemoryStore creates a memory store seeded with token, which may be empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token, now: time.Now}
}

func (s *MemoryStore) CurrentSessionArtifact() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || expired(s.token, s.now()) {
		return "", false
	}
	return s.token, true
}

func (s *MemoryStore) DiscardSessionArtifact() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

func (s *MemoryStore) Replace(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// SQLiteStore persists the token in the credentials table.
type SQLiteStore struct {
	creds *store.CredentialStore
	name  string
	log   *logging.Logger
	now   func() time.Time
}

// NewSQLiteStore creates a store backed by db.
func NewSQLiteStore(db *store.DB, log *logging.Logger) *SQLiteStore {
	return &SQLiteStore{
		creds: store.NewCredentialStore(db),
		name:  DefaultName,
		log:   log.Sub("session"),
		now:   time.Now,
	}
}

func (s *SQLiteStore) CurrentSessionArtifact() (string, bool) {
	cred, ok, err := s.creds.Get(s.name)
	if err != nil {
		s.log.Error().Err(err).Msg("reading session token")
		return "", false
	}
	if !ok || cred.Token == "" {
		return "", false
	}
	if !cred.ExpiresAt.IsZero() && !s.now().Before(cred.ExpiresAt) {
		s.log.Debug().Time("expiredAt", cred.ExpiresAt).Msg("stored session token expired")
		return "", false
	}
	return cred.Token, true
}

func (s *SQLiteStore) DiscardSessionArtifact() {
	if err := s.creds.Delete(s.name); err != nil {
		s.log.Error().Err(err).Msg("discarding session token")
		return
	}
	s.log.Info().Msg("session token discarded")
}

// Replace stores token along with the claims it carries. Tokens that are not
// JWTs are stored as-is with no claims.
func (s *SQLiteStore) Replace(token string) error {
	cred := store.Credential{Name: s.name, Token: token}
	if claims, err := ParseClaims(token); err == nil {
		cred.Subject = claims.Subject
		cred.Role = int(claims.Role)
		cred.ExpiresAt = claims.Expiry()
	} else {
		s.log.Debug().Err(err).Msg("storing opaque session token")
	}
	return s.creds.Put(cred)
}

// Info describes the stored session for display.
type Info struct {
	Present   bool
	Expired   bool
	Subject   string
	Role      AccessLevel
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// Describe returns what is known about the stored session.
func (s *SQLiteStore) Describe() (Info, error) {
	cred, ok, err := s.creds.Get(s.name)
	if err != nil || !ok {
		return Info{}, err
	}
	return Info{
		Present:   true,
		Expired:   !cred.ExpiresAt.IsZero() && !s.now().Before(cred.ExpiresAt),
		Subject:   cred.Subject,
		Role:      AccessLevel(cred.Role),
		ExpiresAt: cred.ExpiresAt,
		UpdatedAt: cred.UpdatedAt,
	}, nil
}

func expired(token string, now time.Time) bool {
	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}
	return claims.Expired(now)
}
