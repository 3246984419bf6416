// Package identity manages custody of User private keys entrusted to the
// Node hosting them (spec.md §4.5: "a Node authors Blocks only on behalf
// of a User whose private key it has been entrusted with"). Keys are kept
// encrypted at rest in memory — the simulation makes no persistence
// guarantee across runs (spec.md §1 Non-goals), so there is no file to
// write, but the custody boundary (a Node cannot read a key it has not
// been given the passphrase to) is still worth enforcing the way the
// teacher's wallet keystore does for its on-disk keys.
package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/saintthor/chainplay/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Iterations = 210_000

// Kind enumerates Keystore failure modes.
type Kind string

const (
	UnknownUser    Kind = "UnknownUser"
	WrongPassword  Kind = "WrongPassword"
	AlreadyHosted  Kind = "AlreadyHosted"
)

// Error wraps a Kind with the underlying cause.
type Error struct {
	Kind Kind
	User string
}

func (e *Error) Error() string { return fmt.Sprintf("identity: %s: user %s", e.Kind, e.User) }

type entry struct {
	pub   crypto.PublicKey
	salt  []byte
	nonce []byte
	ct    []byte
}

// Keystore is the set of User private keys a single Node has been
// entrusted with, encrypted at rest under a per-Node passphrase.
type Keystore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewKeystore creates an empty Keystore.
func NewKeystore() *Keystore {
	return &Keystore{entries: make(map[string]*entry)}
}

// Host encrypts priv under passphrase and custodies it for userID. It
// fails if userID is already hosted — a User's key is handed to exactly
// one Node at a time in the simulation.
func (k *Keystore) Host(userID string, priv crypto.PrivateKey, passphrase string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.entries[userID]; exists {
		return &Error{Kind: AlreadyHosted, User: userID}
	}
	raw, err := priv.Bytes()
	if err != nil {
		return fmt.Errorf("identity: marshal private key for %s: %w", userID, err)
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("identity: generate salt: %w", err)
	}
	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("identity: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("identity: init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("identity: generate nonce: %w", err)
	}
	ct := gcm.Seal(nil, nonce, raw, nil)
	k.entries[userID] = &entry{pub: priv.Public(), salt: salt, nonce: nonce, ct: ct}
	return nil
}

// Evict removes userID's custodied key, e.g. when re-homing a User to a
// different Node.
func (k *Keystore) Evict(userID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, userID)
}

// Hosts reports whether userID's key is currently custodied here.
func (k *Keystore) Hosts(userID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.entries[userID]
	return ok
}

// PublicKey returns the public key for a hosted User without unlocking
// its private key.
func (k *Keystore) PublicKey(userID string) (crypto.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[userID]
	if !ok {
		return "", false
	}
	return e.pub, true
}

// Unlock decrypts and returns userID's private key. Callers should use
// the returned key immediately (e.g. to sign one Block) rather than
// retaining it.
func (k *Keystore) Unlock(userID, passphrase string) (crypto.PrivateKey, error) {
	k.mu.RLock()
	e, ok := k.entries[userID]
	k.mu.RUnlock()
	if !ok {
		return crypto.PrivateKey{}, &Error{Kind: UnknownUser, User: userID}
	}
	key := deriveKey(passphrase, e.salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("identity: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("identity: init gcm: %w", err)
	}
	raw, err := gcm.Open(nil, e.nonce, e.ct, nil)
	if err != nil {
		return crypto.PrivateKey{}, &Error{Kind: WrongPassword, User: userID}
	}
	priv, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("identity: decode private key for %s: %w", userID, err)
	}
	return priv, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
}
