// Package cursor implements the Cursor Store: opaque, signed, TTL-bounded
// continuation tokens, either inline (self-contained) or a short alias
// backed by a server-side entry.
package cursor

import (
	"encoding/json"
	stderrors "errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	amerrors "github.com/codeloom/codeloom/internal/errors"
)

// claims is the JWT payload for both cursor encodings. State carries the
// caller-supplied opaque continuation data (already JSON-encoded by the
// caller, kept as json.RawMessage so the Store never needs to know its
// shape); for an alias cursor, State is empty and AliasID points at the
// server-side entry instead.
type claims struct {
	Fingerprint string          `json:"fp"`
	State       json.RawMessage `json:"st,omitempty"`
	AliasID     string          `json:"al,omitempty"`
	jwt.RegisteredClaims
}

// Encoding selects between a larger self-contained token and a short
// server-backed alias.
type Encoding string

const (
	EncodingInline Encoding = "inline"
	EncodingAlias  Encoding = "alias"
)

// aliasEntry is the server-side record a short alias token resolves to.
type aliasEntry struct {
	fingerprint string
	state       json.RawMessage
	expiresAt   time.Time
}

// Store mints and resolves cursors. Aliases are kept in memory only; the
// Store has no way to save or reload them, so alias tokens do not survive a
// restart (inline tokens do, as long as the signing key is the same).
type Store struct {
	key []byte

	mu      sync.Mutex
	aliases map[string]aliasEntry
}

// New creates a Store signing tokens with key. The key should be stable
// across a daemon's lifetime (and ideally across restarts) so previously
// issued inline cursors keep validating.
func New(key []byte) *Store {
	return &Store{key: key, aliases: make(map[string]aliasEntry)}
}

// Mint issues a cursor over an opaque state payload, bound to fingerprint
// (a hash of every shape-affecting request parameter) and ttl.
func (s *Store) Mint(encoding Encoding, fingerprint string, state any, ttl time.Duration) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", amerrors.Wrap(amerrors.CodeInternal, err)
	}

	now := time.Now()
	reg := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	switch encoding {
	case EncodingInline:
		c := claims{Fingerprint: fingerprint, State: raw, RegisteredClaims: reg}
		return s.sign(c)

	case EncodingAlias:
		id := uuid.NewString()
		s.mu.Lock()
		s.aliases[id] = aliasEntry{fingerprint: fingerprint, state: raw, expiresAt: now.Add(ttl)}
		s.mu.Unlock()

		c := claims{Fingerprint: fingerprint, AliasID: id, RegisteredClaims: reg}
		return s.sign(c)

	default:
		return "", amerrors.New(amerrors.CodeInvalidRequest, "unknown cursor encoding")
	}
}

func (s *Store) sign(c claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", amerrors.Wrap(amerrors.CodeInternal, err)
	}
	return signed, nil
}

// Resolve verifies and decodes a cursor token. fingerprint must equal the
// one the cursor was minted with — any shape-affecting parameter change on
// reuse must fail closed with cursor_mismatch per spec.md §4.11.
func (s *Store) Resolve(token string, fingerprint string, out any) error {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return amerrors.New(amerrors.CodeCursorExpired, "cursor has expired")
		}
		return amerrors.New(amerrors.CodeInvalidCursor, "cursor could not be parsed")
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return amerrors.New(amerrors.CodeInvalidCursor, "cursor is malformed")
	}

	if c.Fingerprint != fingerprint {
		return amerrors.New(amerrors.CodeCursorMismatch, "cursor parameters changed since it was issued").
			WithHint("restart the operation without a cursor")
	}

	state := c.State
	if c.AliasID != "" {
		s.mu.Lock()
		entry, found := s.aliases[c.AliasID]
		s.mu.Unlock()
		if !found {
			return amerrors.New(amerrors.CodeCursorExpired, "alias cursor entry no longer exists")
		}
		if time.Now().After(entry.expiresAt) {
			return amerrors.New(amerrors.CodeCursorExpired, "cursor has expired")
		}
		if entry.fingerprint != fingerprint {
			return amerrors.New(amerrors.CodeCursorMismatch, "cursor parameters changed since it was issued")
		}
		state = entry.state
	}

	if out != nil {
		if err := json.Unmarshal(state, out); err != nil {
			return amerrors.Wrap(amerrors.CodeInvalidCursor, err)
		}
	}
	return nil
}

// Sweep evicts expired alias entries; callers run it on a timer.
func (s *Store) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.aliases {
		if now.After(e.expiresAt) {
			delete(s.aliases, id)
			n++
		}
	}
	return n
}
