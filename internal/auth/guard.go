package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync"
)

// Realm is the HTTP Basic realm presented to browsers.
const Realm = "voiceloops"

// Guard enforces HTTP Basic authentication against an argon2id hash. Any
// user name is accepted; only the password is checked.
//
// The SHA-256 digest of the last accepted password is cached; requests
// presenting it skip the argon2id computation.
type Guard struct {
	hash string

	mu       sync.Mutex
	accepted [sha256.Size]byte
	cached   bool
}

// NewGuard creates a Guard for encodedHash.
func NewGuard(encodedHash string) (*Guard, error) {
	if err := ValidateHash(encodedHash); err != nil {
		return nil, err
	}
	return &Guard{hash: encodedHash}, nil
}

// Check reports whether password is the console password.
func (g *Guard) Check(password string) bool {
	digest := sha256.Sum256([]byte(password))

	g.mu.Lock()
	if g.cached && subtle.ConstantTimeCompare(digest[:], g.accepted[:]) == 1 {
		g.mu.Unlock()
		return true
	}
	g.mu.Unlock()

	ok, err := VerifyPassword(password, g.hash)
	if err != nil || !ok {
		return false
	}

	g.mu.Lock()
	g.accepted = digest
	g.cached = true
	g.mu.Unlock()
	return true
}

// Wrap returns next behind Basic authentication.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok || !g.Check(password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`", charset="UTF-8"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
