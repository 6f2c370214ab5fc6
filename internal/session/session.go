// Package session holds the single persisted bearer token that decides
// whether the client is signed in.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKey is the backend key the token lives under.
const TokenKey = "token"

var ErrNoToken = errors.New("no session token")

// Backend is a persistent string key/value store. fyne.Preferences satisfies
// it, as do FileBackend and MemoryBackend.
type Backend interface {
	String(key string) string
	SetString(key, value string)
	RemoveValue(key string)
}

type Store struct {
	mu      sync.Mutex
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Login persists token, replacing any previous one.
func (s *Store) Login(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.SetString(TokenKey, token)
}

// Logout removes the token. Calling it without a session is a no-op.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend.RemoveValue(TokenKey)
}

func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.String(TokenKey)
}

func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Claims is what the client can read out of the token for display.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Claims decodes the token payload without checking the signature or expiry.
// The result is informational only; a revoked or expired token is still only
// discovered when the API answers 401.
func (s *Store) Claims() (Claims, error) {
	token := s.Token()
	if token == "" {
		return Claims{}, ErrNoToken
	}

	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, err
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}
