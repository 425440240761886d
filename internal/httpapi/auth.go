package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// AuthorizationPolicy decides whether a request may perform admin-grade
// operations (direct mutations, intent review, archiving). One
// implementation per environment, injected into the router.
type AuthorizationPolicy interface {
	Authorize(r *http.Request) bool
}

// AllowAll is the development policy.
type AllowAll struct{}

func (AllowAll) Authorize(*http.Request) bool { return true }

// KeyPolicy authorizes bearer keys against a stored SHA-256 hash. Plain
// keys are never kept in memory or config; comparison is constant time.
type KeyPolicy struct {
	keyHash string
}

// NewKeyPolicy takes the hex SHA-256 hash of the admin key.
func NewKeyPolicy(keyHash string) *KeyPolicy {
	return &KeyPolicy{keyHash: strings.ToLower(strings.TrimSpace(keyHash))}
}

// HashKey returns the hex SHA-256 of a plain key, for provisioning config.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (p *KeyPolicy) Authorize(r *http.Request) bool {
	if p.keyHash == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	provided := HashKey(strings.TrimSpace(parts[1]))
	return subtle.ConstantTimeCompare([]byte(provided), []byte(p.keyHash)) == 1
}

// requireAuthz gates a route subtree behind the policy.
func requireAuthz(policy AuthorizationPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy == nil || !policy.Authorize(r) {
				writeErrReason(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
