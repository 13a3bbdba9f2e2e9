package vault

import (
	"sync"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/crypto"
)

// DefaultSessionTTL is how long unsealed key material stays cached
const DefaultSessionTTL = 30 * time.Minute

// SessionContext carries the session tier settings shared by the vault and the orchestrator.
// Build it once per process.
type SessionContext struct {
	TTL time.Duration
	Now func() time.Time
}

// NewSessionContext returns a SessionContext with the wall clock
func NewSessionContext(ttl time.Duration) *SessionContext {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionContext{TTL: ttl, Now: time.Now}
}

// CurrentTime reads the session clock
func (s *SessionContext) CurrentTime() time.Time {
	return s.now()
}

func (s *SessionContext) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *SessionContext) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

// sessionEntry is one cached key bundle
type sessionEntry struct {
	walletID  string
	bundle    []byte
	createdAt time.Time
	expiresAt time.Time
}

func (e *sessionEntry) wipe() {
	clear(e.bundle)
	e.bundle = nil
}

// sessionCache is the in-process tier. Entries expire passively on read.
type sessionCache struct {
	mu      sync.Mutex
	ctx     *SessionContext
	entries map[string]*sessionEntry
}

func newSessionCache(ctx *SessionContext) *sessionCache {
	return &sessionCache{
		ctx:     ctx,
		entries: make(map[string]*sessionEntry),
	}
}

func (c *sessionCache) put(walletID string, material *crypto.WalletKeyMaterial) error {
	bundle, err := crypto.EncodeBundle(material)
	if err != nil {
		return err
	}

	now := c.ctx.now()
	entry := &sessionEntry{
		walletID:  walletID,
		bundle:    bundle,
		createdAt: now,
		expiresAt: now.Add(c.ctx.ttl()),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[walletID]; ok {
		old.wipe()
	}
	c.entries[walletID] = entry
	return nil
}

// get returns a decoded copy of the cached material. Expired entries are deleted.
func (c *sessionCache) get(walletID string) (*crypto.WalletKeyMaterial, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[walletID]
	if !ok {
		return nil, false
	}
	if !c.ctx.now().Before(entry.expiresAt) {
		entry.wipe()
		delete(c.entries, walletID)
		return nil, false
	}

	material, err := crypto.DecodeBundle(entry.bundle)
	if err != nil {
		entry.wipe()
		delete(c.entries, walletID)
		return nil, false
	}
	return material, true
}

func (c *sessionCache) delete(walletID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[walletID]; ok {
		entry.wipe()
		delete(c.entries, walletID)
	}
}

func (c *sessionCache) deleteAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		entry.wipe()
		delete(c.entries, id)
	}
}
