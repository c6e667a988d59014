package togglekit

import (
	"sync"

	"github.com/google/uuid"
)

// User is the subject of an evaluation: a stable rollout key plus free-form
// string attributes. It is created per evaluation call by the host and never
// persisted by the SDK.
type User struct {
	mu    sync.Mutex
	key   string
	attrs map[string]string
}

// NewUser creates a user with no attributes. If StableRollout is never
// called, a key is generated on first use and cached for the lifetime of the
// value, so repeated evaluations of the same User bucket consistently.
func NewUser() *User {
	return &User{attrs: make(map[string]string)}
}

// StableRollout sets the explicit rollout key used for percentage bucketing.
func (u *User) StableRollout(key string) *User {
	u.mu.Lock()
	u.key = key
	u.mu.Unlock()
	return u
}

// With adds a single attribute.
func (u *User) With(key, value string) *User {
	u.attrs[key] = value
	return u
}

// WithAttrs adds all entries of attrs.
func (u *User) WithAttrs(attrs map[string]string) *User {
	for k, v := range attrs {
		u.attrs[k] = v
	}
	return u
}

// Get returns the named attribute.
func (u *User) Get(key string) (string, bool) {
	v, ok := u.attrs[key]
	return v, ok
}

// Attrs returns the full attribute map. The map is shared, not copied.
func (u *User) Attrs() map[string]string {
	return u.attrs
}

// Key returns the stable rollout key, generating and caching one on first
// call if none was set.
func (u *User) Key() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.key == "" {
		u.key = uuid.NewString()
	}
	return u.key
}
