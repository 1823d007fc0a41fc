// Package identity maintains agent keypairs: creation, passphrase-wrapped
// storage, signing, verification, and rotation. It is the only package
// permitted to hold private key material unencrypted: freshly generated
// keys are zeroed once wrapped, and unwrapped keys live only in the
// bounded 60-second unwrap cache.
package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/internal/store"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/logger"
)

// unwrappedCacheTTL amortizes the scrypt cost of repeated signs by the
// same agent within a short window. Invalidated early on quarantine or
// rotation.
const unwrappedCacheTTL = 60 * time.Second

// keyRecord is what the store persists for an agent's key material.
type keyRecord struct {
	AgentID     string
	PublicKey   ed25519.PublicKey
	Wrapped     *WrappedKey
	PriorPublic []ed25519.PublicKey // retained across rotations for verifying old entries
}

// Manager owns every agent keypair and is the sole component permitted
// to unwrap a private key.
type Manager struct {
	log *logger.Logger
	st  store.Store

	mu      sync.Mutex
	keys    map[string]*keyRecord
	locks   sync.Map // agentID -> *sync.Mutex, serializes unwraps per agent
	cache   *lru.LRU[string, ed25519.PrivateKey]
}

// NewManager constructs a Manager backed by st.
func NewManager(st store.Store, log *logger.Logger) *Manager {
	return &Manager{
		st:    st,
		log:   log,
		keys:  make(map[string]*keyRecord),
		cache: lru.NewLRU[string, ed25519.PrivateKey](1024, nil, unwrappedCacheTTL),
	}
}

func (m *Manager) agentLock(agentID string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(agentID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// toStoreRecord converts the in-process key record into the form
// persisted by store.Store. The store is the sole authoritative copy;
// m.keys is only a warm cache over it.
func toStoreRecord(rec *keyRecord) *domain.AgentKeyRecord {
	prior := make([][]byte, len(rec.PriorPublic))
	for i, p := range rec.PriorPublic {
		prior[i] = []byte(p)
	}
	return &domain.AgentKeyRecord{
		AgentID: rec.AgentID, PublicKey: []byte(rec.PublicKey),
		WrappedSalt: rec.Wrapped.Salt, WrappedCiphertext: rec.Wrapped.Ciphertext,
		PriorPublicKeys: prior,
	}
}

func fromStoreRecord(rec *domain.AgentKeyRecord) *keyRecord {
	prior := make([]ed25519.PublicKey, len(rec.PriorPublicKeys))
	for i, p := range rec.PriorPublicKeys {
		prior[i] = ed25519.PublicKey(p)
	}
	return &keyRecord{
		AgentID: rec.AgentID, PublicKey: ed25519.PublicKey(rec.PublicKey),
		Wrapped:     &WrappedKey{Salt: rec.WrappedSalt, Ciphertext: rec.WrappedCiphertext},
		PriorPublic: prior,
	}
}

// loadKeyRecord returns the cached key record for agentID, falling back
// to the store on a cold cache (e.g. right after a process restart) and
// populating the cache on the way out.
func (m *Manager) loadKeyRecord(ctx context.Context, agentID string) (*keyRecord, error) {
	m.mu.Lock()
	rec, ok := m.keys[agentID]
	m.mu.Unlock()
	if ok {
		return rec, nil
	}

	stored, err := m.st.GetAgentKey(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load agent key: %w", err)
	}
	rec = fromStoreRecord(stored)

	m.mu.Lock()
	m.keys[agentID] = rec
	m.mu.Unlock()
	return rec, nil
}

// CreateAgent generates a keypair for a new agent and persists the
// public key plus the passphrase-wrapped private key. There is no
// default passphrase; an empty or low-entropy one is rejected.
func (m *Manager) CreateAgent(ctx context.Context, agentID string, role domain.Role, passphrase string) (*domain.Agent, error) {
	if passphrase == "" || entropyBits(passphrase) < MinPassphraseEntropyBits {
		return nil, errs.WeakPassphrase()
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	wrapped, err := WrapPrivateKey(passphrase, []byte(agentID), priv)
	zero(priv)
	if err != nil {
		return nil, fmt.Errorf("wrap private key: %w", err)
	}

	now := time.Now()
	agent := &domain.Agent{
		ID: agentID, Role: role, PublicKey: pub,
		Influence: domain.InitialInfluence, Trust: domain.InitialTrustScore,
		Stage: domain.StageForTrust(domain.InitialTrustScore),
		Probation: true, ProbationStart: now,
		CreatedAt: now, LastRotation: now,
	}
	if err := m.st.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("persist agent: %w", err)
	}

	rec := &keyRecord{AgentID: agentID, PublicKey: pub, Wrapped: wrapped}
	storeRec := toStoreRecord(rec)
	storeRec.CreatedAt, storeRec.UpdatedAt = now, now
	if err := m.st.CreateAgentKey(ctx, storeRec); err != nil {
		return nil, fmt.Errorf("persist agent key: %w", err)
	}

	m.mu.Lock()
	m.keys[agentID] = rec
	m.mu.Unlock()

	m.log.LogCryptoOperation(ctx, "create_agent", true, nil)
	return agent, nil
}

// Sign signs bytes with the agent's private key. A key unwrapped within
// the last 60 seconds is taken from the unwrap cache and the passphrase
// is not checked; otherwise the stored key is unwrapped with passphrase,
// failing with IDENTITY_LOCKED if it does not unwrap.
func (m *Manager) Sign(ctx context.Context, agentID, passphrase string, message []byte) ([]byte, error) {
	lock := m.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	priv, err := m.unwrap(ctx, agentID, passphrase)
	if err != nil {
		m.log.LogCryptoOperation(ctx, "sign", false, err)
		return nil, errs.IdentityLocked(agentID)
	}
	sig := ed25519.Sign(priv, message)
	m.log.LogCryptoOperation(ctx, "sign", true, nil)
	return sig, nil
}

func (m *Manager) unwrap(ctx context.Context, agentID, passphrase string) (ed25519.PrivateKey, error) {
	if cached, ok := m.cache.Get(agentID); ok {
		return cached, nil
	}

	rec, err := m.loadKeyRecord(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("no key record for agent %s: %w", agentID, err)
	}

	priv, err := UnwrapPrivateKey(passphrase, []byte(agentID), rec.Wrapped)
	if err != nil {
		return nil, err
	}
	m.cache.Add(agentID, priv)
	return priv, nil
}

// Verify checks a signature against an agent's current or any prior
// public key (so past ledger entries remain verifiable after rotation).
// A signature of the wrong length is rejected up front; otherwise the
// check is delegated entirely to ed25519.Verify, with no separate raw
// byte comparison in this function.
func (m *Manager) Verify(ctx context.Context, agentID string, message, signature []byte) bool {
	rec, err := m.loadKeyRecord(ctx, agentID)
	if err != nil {
		return false
	}

	if len(signature) != ed25519.SignatureSize {
		return false
	}
	if ed25519.Verify(rec.PublicKey, message, signature) {
		return true
	}
	for _, prior := range rec.PriorPublic {
		if ed25519.Verify(prior, message, signature) {
			return true
		}
	}
	return false
}

// Rotate generates a fresh keypair for agentID, retaining the previous
// public key so historical ledger entries still verify. The unwrap
// cache entry is invalidated immediately.
func (m *Manager) Rotate(ctx context.Context, agentID, passphrase string) error {
	rec, err := m.loadKeyRecord(ctx, agentID)
	if err != nil {
		return fmt.Errorf("no key record for agent %s: %w", agentID, err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	wrapped, err := WrapPrivateKey(passphrase, []byte(agentID), priv)
	zero(priv)
	if err != nil {
		return fmt.Errorf("wrap private key: %w", err)
	}

	m.mu.Lock()
	rec.PriorPublic = append(rec.PriorPublic, rec.PublicKey)
	rec.PublicKey = pub
	rec.Wrapped = wrapped
	m.mu.Unlock()

	m.cache.Remove(agentID)

	storeRec := toStoreRecord(rec)
	storeRec.UpdatedAt = time.Now()
	if err := m.st.UpdateAgentKey(ctx, storeRec); err != nil {
		return fmt.Errorf("persist rotated key: %w", err)
	}

	agent, err := m.st.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("load agent: %w", err)
	}
	agent.PublicKey = pub
	agent.LastRotation = time.Now()
	if err := m.st.UpdateAgent(ctx, agent); err != nil {
		return fmt.Errorf("persist rotation: %w", err)
	}

	m.log.LogCryptoOperation(ctx, "rotate", true, nil)
	return nil
}

// InvalidateCache forces the next Sign to re-unwrap from the wrapped
// key, used when an agent is quarantined mid-session.
func (m *Manager) InvalidateCache(agentID string) {
	m.cache.Remove(agentID)
}

// zero overwrites a private key buffer after use.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeEqual compares two byte slices without leaking timing
// information about where they first differ, for callers (e.g. replay
// verification) that need a raw byte comparison outside ed25519.Verify.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
