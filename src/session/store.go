// Package session implements a gorilla/sessions store that keeps session
// values server side.
//
// The cookie only carries the session ID, signed with securecookie. Values
// live in a Backend keyed by that ID. A session is persisted, and its cookie
// written, only when Save is called; reading a session for a request that
// carries no cookie allocates nothing outside the request.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// ErrNotFound is returned by a Backend when no live entry exists for an ID.
var ErrNotFound = errors.New("session not found")

// Values is the server-side state of one session.
type Values = map[interface{}]interface{}

// Backend stores session values by session ID.
type Backend interface {
	// Load returns the values stored under id, or ErrNotFound.
	Load(ctx context.Context, id string) (Values, error)

	// Save stores values under id for ttl.
	Save(ctx context.Context, id string, values Values, ttl time.Duration) error

	// Delete removes id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// Store is a sessions.Store backed by a Backend.
type Store struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options

	backend Backend
}

var _ sessions.Store = (*Store)(nil)

// NewStore returns a Store saving values into backend.
//
// keyPairs are securecookie hash/block key pairs; the first pair signs new
// cookies and every pair is tried when decoding, which allows key rotation.
func NewStore(backend Backend, opts sessions.Options, keyPairs ...[]byte) *Store {
	s := &Store{
		Codecs:  securecookie.CodecsFromPairs(keyPairs...),
		Options: &opts,
		backend: backend,
	}
	s.MaxAge(opts.MaxAge)
	return s
}

// MaxAge sets the maximum age for the store and the underlying cookie
// implementation.
func (s *Store) MaxAge(age int) {
	s.Options.MaxAge = age

	for _, codec := range s.Codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
}

// Get returns a cached session for the request, creating it via New on first
// access.
func (s *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the session named name for the request.
//
// A missing cookie, an unknown or expired ID yield a new empty session and no
// error. A cookie that fails signature verification yields a new session and
// the decode error.
func (s *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.Codecs...); err != nil {
		return session, fmt.Errorf("failed to decode session cookie: %w", err)
	}

	values, err := s.backend.Load(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return session, nil
	}
	if err != nil {
		return session, fmt.Errorf("failed to load session: %w", err)
	}

	session.ID = id
	session.Values = values
	session.IsNew = false
	return session, nil
}

// Save persists the session values and writes the session cookie.
//
// A negative MaxAge deletes the stored values and expires the cookie.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.Delete(r.Context(), session.ID); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	// IDs are only ever minted here, so a client cannot pick its own.
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.backend.Save(r.Context(), session.ID, session.Values, ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}

	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}
