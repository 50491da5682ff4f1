// Package session keeps per-visitor state across requests. Values are JSON
// encoded so the same session can live in process memory or Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL matches a two week cookie lifetime.
const DefaultTTL = 14 * 24 * time.Hour

// ErrNotFound is returned by stores for unknown or expired ids.
var ErrNotFound = errors.New("session: not found")

type Store interface {
	Load(ctx context.Context, id string) (map[string]json.RawMessage, error)
	Save(ctx context.Context, id string, values map[string]json.RawMessage, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Session is a single visitor's key/value bag. It is not safe for
// concurrent use; each request owns its Session.
type Session struct {
	id       string
	values   map[string]json.RawMessage
	isNew    bool
	modified bool
}

// New returns an empty session with a fresh id.
func New() *Session {
	return &Session{
		id:     uuid.NewString(),
		values: make(map[string]json.RawMessage),
		isNew:  true,
	}
}

func newFromValues(id string, values map[string]json.RawMessage) *Session {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	return &Session{id: id, values: values}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) IsNew() bool {
	return s.isNew
}

// Get decodes the value stored at key into dst. It reports false when the
// key is absent.
func (s *Session) Get(key string, dst any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, err
	}
	return true, nil
}

// GetString is a convenience for plain string values.
func (s *Session) GetString(key string) string {
	var v string
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return ""
	}
	return v
}

func (s *Session) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.values[key] = raw
	s.modified = true
	return nil
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

// MarkModified forces the session to be written back at the end of the request.
func (s *Session) MarkModified() {
	s.modified = true
}

func (s *Session) Modified() bool {
	return s.modified
}

// Save persists the session if anything changed.
func (s *Session) Save(ctx context.Context, store Store, ttl time.Duration) error {
	if !s.modified {
		return nil
	}
	if err := store.Save(ctx, s.id, s.values, ttl); err != nil {
		return err
	}
	s.modified = false
	s.isNew = false
	return nil
}

// Load fetches id from store, falling back to a new session when the id
// is empty, unknown or expired.
func Load(ctx context.Context, store Store, id string) (*Session, error) {
	if id == "" {
		return New(), nil
	}
	values, err := store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}
	return newFromValues(id, values), nil
}
