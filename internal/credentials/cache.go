// Package credentials holds the session cookie and crumb token shared between
// the polling loop and anything else that needs to read them.
package credentials

import (
	"errors"
	"sync"
	"time"
)

// ErrIncomplete is returned by Set when either field is empty
var ErrIncomplete = errors.New("credentials: cookie and crumb must both be set")

// Credentials is a cookie together with the crumb derived from it
type Credentials struct {
	Cookie     string
	Crumb      string
	ObtainedAt time.Time
}

// Complete reports whether both the cookie and the crumb are present
func (c Credentials) Complete() bool {
	return c.Cookie != "" && c.Crumb != ""
}

// Cache stores the current credentials.
//
// There is a single writer (the polling loop); any number of goroutines may
// read. A reader always sees a cookie and crumb from the same Set call.
type Cache struct {
	mu    sync.RWMutex
	creds Credentials
	valid bool
}

// NewCache returns an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the stored credentials and true, or the zero value and false if
// nothing is stored.
func (c *Cache) Get() (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds, c.valid
}

// Set replaces both fields at once
func (c *Cache) Set(creds Credentials) error {
	if !creds.Complete() {
		return ErrIncomplete
	}

	c.mu.Lock()
	c.creds = creds
	c.valid = true
	c.mu.Unlock()
	return nil
}

// Invalidate drops the stored credentials so the next reader refreshes them
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.creds = Credentials{}
	c.valid = false
	c.mu.Unlock()
}
