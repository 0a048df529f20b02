// Package session keeps per-browser authentication state on the server and
// hands the browser a signed token referencing it. MemoryStore satisfies
// gorilla/sessions.Store so handlers use the usual session API.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
)

const (
	// DefaultCookieName is the cookie carrying the session token.
	DefaultCookieName = "referral.sid"
	// DefaultTTL is how long a session survives without activity.
	DefaultTTL = 48 * time.Hour
)

type record struct {
	values    map[interface{}]interface{}
	expiresAt time.Time
}

// Store is a sessions.Store that can reissue a session under a fresh id.
type Store interface {
	sessions.Store
	// Regenerate drops the server record behind s and clears its id so the
	// next Save issues a new token. Values are kept.
	Regenerate(s *sessions.Session)
}

// MemoryStore is an in-process sessions.Store with sliding expiry.
type MemoryStore struct {
	Options *sessions.Options

	secret  []byte
	ttl     time.Duration
	mu      sync.RWMutex
	records map[string]record
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// StoreConfig configures a MemoryStore.
type StoreConfig struct {
	Secret          string
	TTL             time.Duration
	Secure          bool
	CleanupInterval time.Duration
}

func NewMemoryStore(cfg StoreConfig) (*MemoryStore, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("session secret must be at least 16 characters")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	s := &MemoryStore{
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   int(cfg.TTL / time.Second),
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: http.SameSiteLaxMode,
		},
		secret:  []byte(cfg.Secret),
		ttl:     cfg.TTL,
		records: make(map[string]record),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go s.cleanupLoop(cfg.CleanupInterval)
	}
	return s, nil
}

// Get returns the session cached for this request, loading it on first use.
func (s *MemoryStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie. An absent,
// tampered or expired token yields a fresh session.
func (s *MemoryStore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.Options
	sess.Options = &opts
	sess.IsNew = true

	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return sess, nil
	}

	now := s.now()
	id, err := decodeToken(s.secret, c.Value, now)
	if err != nil {
		return sess, nil
	}

	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok || !now.Before(rec.expiresAt) {
		return sess, nil
	}

	for k, v := range rec.values {
		sess.Values[k] = v
	}
	sess.ID = id
	sess.IsNew = false
	return sess, nil
}

// Save persists the session and refreshes its cookie. A negative MaxAge
// destroys the server-side record and expires the cookie.
func (s *MemoryStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	if sess.Options == nil {
		opts := *s.Options
		sess.Options = &opts
	}

	if sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			s.mu.Lock()
			delete(s.records, sess.ID)
			s.mu.Unlock()
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}

	if sess.ID == "" {
		id, err := generateSessionID()
		if err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
		sess.ID = id
	}

	ttl := s.ttl
	if sess.Options.MaxAge > 0 {
		ttl = time.Duration(sess.Options.MaxAge) * time.Second
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	token, err := encodeToken(s.secret, sess.ID, now, expiresAt)
	if err != nil {
		return err
	}

	values := make(map[interface{}]interface{}, len(sess.Values))
	for k, v := range sess.Values {
		values[k] = v
	}

	s.mu.Lock()
	s.records[sess.ID] = record{values: values, expiresAt: expiresAt}
	s.mu.Unlock()

	http.SetCookie(w, sessions.NewCookie(sess.Name(), token, sess.Options))
	return nil
}

func (s *MemoryStore) Regenerate(sess *sessions.Session) {
	if sess.ID != "" {
		s.mu.Lock()
		delete(s.records, sess.ID)
		s.mu.Unlock()
	}
	sess.ID = ""
	sess.IsNew = true
}

// CleanExpired removes expired session records.
func (s *MemoryStore) CleanExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, id)
		}
	}
}

// Count returns the number of stored sessions.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close stops the cleanup loop.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanExpired()
		case <-s.stop:
			return
		}
	}
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

var _ Store = (*MemoryStore)(nil)
