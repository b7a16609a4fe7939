package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrInvalidCredentials is returned when a username/password pair does not
	// match any known account.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a token is missing from the store.
	ErrInvalidToken = errors.New("invalid token")
)

// Store issues and verifies opaque bearer tokens. Tokens live only in memory
// and are invalidated on logout or process restart.
type Store interface {
	Login(username, password string) (string, error)
	Logout(token string)
	Verify(token string) (string, bool)
}

// MemoryStore keeps active tokens in a mutex-guarded map keyed by token.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
	accounts map[string]string
}

// NewMemoryStore builds a store with the given accounts, a map of lowercase
// username to hex-encoded SHA-256 password hash.
func NewMemoryStore(accounts map[string]string) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]string),
		accounts: accounts,
	}
}

// DefaultAccounts returns the built-in demo accounts.
func DefaultAccounts() map[string]string {
	return map[string]string{
		"david":    hashPassword("kings2024"),
		"admin":    hashPassword("admin123"),
		"radiolog": hashPassword("radiology"),
	}
}

// Login checks the credentials and, on success, issues a fresh token bound to
// the username. Usernames are case-insensitive.
func (s *MemoryStore) Login(username, password string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	want, ok := s.accounts[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	got := hashPassword(password)
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return "", ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	s.sessions[token] = username
	return token, nil
}

// Logout removes the token. Unknown tokens are ignored.
func (s *MemoryStore) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Verify reports the username bound to the token, if any.
func (s *MemoryStore) Verify(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.sessions[token]
	return username, ok
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
