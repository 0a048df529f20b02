// Package otp issues numeric one-time passcodes and keeps them in an
// expiring, process-local cache keyed by phone number.
package otp

import (
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTTL is how long an issued passcode stays valid.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxAttempts is how many wrong guesses burn a passcode.
	DefaultMaxAttempts = 5
)

// Cache stores at most one live passcode per phone number.
type Cache interface {
	// Set stores code for phone, replacing any previous entry.
	Set(phone, code string, ttl time.Duration) error
	// Verify reports whether code matches the live entry without consuming it.
	// A wrong code counts against the entry's attempt budget.
	Verify(phone, code string) bool
	// Consume atomically verifies and deletes the entry. Only one caller can
	// succeed for a given entry.
	Consume(phone, code string) bool
	// Delete drops the entry for phone, if any.
	Delete(phone string)
}

type entry struct {
	hash      []byte
	expiresAt time.Time
	attempts  int
}

// MemoryCache keeps bcrypt hashes of passcodes in memory. Hashes are compared
// outside the lock; entries are identified by pointer so a compare that raced
// with Set or Consume never acts on a replaced entry.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	maxAttempts int
	now         func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a cache and starts a janitor sweeping expired
// entries every cleanupInterval. A non-positive interval disables the janitor.
// An entry is dropped after maxAttempts wrong codes; non-positive means
// DefaultMaxAttempts.
func NewMemoryCache(cleanupInterval time.Duration, maxAttempts int) *MemoryCache {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	c := &MemoryCache{
		entries:     make(map[string]*entry),
		maxAttempts: maxAttempts,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *MemoryCache) Set(phone, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[phone] = &entry{hash: hash, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Verify(phone, code string) bool {
	e, ok := c.match(phone, code)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[phone] == e
}

func (c *MemoryCache) Consume(phone, code string) bool {
	e, ok := c.match(phone, code)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[phone] != e {
		return false
	}
	delete(c.entries, phone)
	return true
}

func (c *MemoryCache) Delete(phone string) {
	c.mu.Lock()
	delete(c.entries, phone)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CleanExpired removes every expired entry.
func (c *MemoryCache) CleanExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for phone, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, phone)
		}
	}
}

// Close stops the janitor.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// match returns the live entry for phone when code matches its hash. A
// mismatch is charged to the entry.
func (c *MemoryCache) match(phone, code string) (*entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[phone]
	if ok && !c.now().Before(e.expiresAt) {
		delete(c.entries, phone)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	if code == "" || bcrypt.CompareHashAndPassword(e.hash, []byte(code)) != nil {
		c.recordFailure(phone, e)
		return nil, false
	}
	return e, true
}

func (c *MemoryCache) recordFailure(phone string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[phone] != e {
		return
	}
	e.attempts++
	if e.attempts >= c.maxAttempts {
		delete(c.entries, phone)
	}
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanExpired()
		case <-c.stop:
			return
		}
	}
}

var _ Cache = (*MemoryCache)(nil)
