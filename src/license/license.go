package license

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
)

// Verifier reports whether a candidate key grants access.
type Verifier interface {
	Verify(candidate string) bool
}

// Store is the immutable set of license keys loaded at startup.
type Store struct {
	keys map[string]struct{}
}

// Load reads a newline-delimited key list from path.
//
// Every line is a key, compared byte for byte. Lines are not trimmed, so a
// file saved with CRLF endings yields keys ending in "\r". Empty lines,
// including the one after a trailing newline, are skipped: the empty string
// is never a valid key.
func Load(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read license file: %w", err)
	}

	return New(strings.Split(string(b), "\n")...), nil
}

// New returns a Store holding keys. Empty strings are dropped.
func New(keys ...string) *Store {
	s := &Store{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k == "" {
			continue
		}
		s.keys[k] = struct{}{}
	}
	return s
}

// Verify returns true iff candidate exactly equals a loaded key.
func (s *Store) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	_, found := s.keys[candidate]
	return found
}

// Len returns the number of distinct keys.
func (s *Store) Len() int {
	return len(s.keys)
}

// Fingerprint returns a sha256 hash of key in hex format.
func Fingerprint(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return fmt.Sprintf("%x", h.Sum(nil))
}
