package paygate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// ReplayGuard tracks authorization nonces seen by the verifier so that the
// same signed authorization can never be accepted twice for the same
// signer and asset. Entries expire once the authorization's own validity
// window has long passed; an expired nonce is unusable anyway because the
// time-window check rejects it first.
type ReplayGuard struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	lastGC time.Time
}

// NewReplayGuard creates a replay guard. ttl should comfortably exceed the
// longest validBefore window the service ever issues.
func NewReplayGuard(ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// replayKey derives a fixed-size key from signer, asset and nonce.
// Addresses are lowercased so that checksum casing differences cannot be
// used to replay an authorization.
func replayKey(from, asset, nonce string) string {
	h := sha256.Sum256([]byte(strings.ToLower(from) + "|" + strings.ToLower(asset) + "|" + strings.ToLower(nonce)))
	return hex.EncodeToString(h[:])
}

// MarkIfUnseen atomically records the nonce and reports whether it was new.
// Returns false if the nonce was already recorded for this signer+asset.
func (g *ReplayGuard) MarkIfUnseen(from, asset, nonce string) bool {
	key := replayKey(from, asset, nonce)
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.seen[key]; ok && now.Before(expiry) {
		return false
	}
	g.seen[key] = now.Add(g.ttl)

	// Lazy cleanup, at most once per ttl.
	if now.Sub(g.lastGC) > g.ttl {
		for k, expiry := range g.seen {
			if now.After(expiry) {
				delete(g.seen, k)
			}
		}
		g.lastGC = now
	}
	return true
}

// Seen reports whether the nonce has been recorded without marking it.
func (g *ReplayGuard) Seen(from, asset, nonce string) bool {
	key := replayKey(from, asset, nonce)

	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, ok := g.seen[key]
	return ok && time.Now().Before(expiry)
}
