package rpt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Tag is the signature domain separator.
const Tag = "APGMS_RPT_v1"

const seedInfo = "ed25519-seed"

// KeyMaterial is the configured key input. PrivateKey wins over Secret.
type KeyMaterial struct {
	PrivateKey string
	PublicKey  string
	Secret     string
	Trusted    []string
}

// Keyring holds the signing key, if any, and the set of verify keys accepted
// by Verify.
type Keyring struct {
	private ed25519.PrivateKey
	trusted map[string]ed25519.PublicKey
}

// NewKeyring builds a keyring. A nil private key yields a verify-only keyring.
func NewKeyring(private ed25519.PrivateKey, trusted ...ed25519.PublicKey) *Keyring {
	k := &Keyring{private: private, trusted: make(map[string]ed25519.PublicKey)}
	if private != nil {
		k.Trust(private.Public().(ed25519.PublicKey))
	}
	for _, pub := range trusted {
		k.Trust(pub)
	}
	return k
}

// LoadKeyring resolves configured key material.
func LoadKeyring(m KeyMaterial) (*Keyring, error) {
	var private ed25519.PrivateKey
	switch {
	case m.PrivateKey != "":
		raw, err := DecodeKey(m.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("APGMS_RPT_PRIVATE_KEY: %w", err)
		}
		switch len(raw) {
		case ed25519.SeedSize:
			private = ed25519.NewKeyFromSeed(raw)
		case ed25519.PrivateKeySize:
			private = ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
			if !private.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
				return nil, errors.New("APGMS_RPT_PRIVATE_KEY: embedded public key does not match seed")
			}
		default:
			return nil, fmt.Errorf("APGMS_RPT_PRIVATE_KEY: %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
		}
	case m.Secret != "":
		seed, err := DeriveSeed(m.Secret)
		if err != nil {
			return nil, err
		}
		private = ed25519.NewKeyFromSeed(seed)
	}

	k := NewKeyring(private)
	if m.PublicKey != "" {
		pub, err := decodePublicKey(m.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("APGMS_RPT_PUBLIC_KEY: %w", err)
		}
		if private != nil && !private.Public().(ed25519.PublicKey).Equal(pub) {
			return nil, errors.New("APGMS_RPT_PUBLIC_KEY does not match the private key")
		}
		k.Trust(pub)
	}
	for i, t := range m.Trusted {
		if strings.TrimSpace(t) == "" {
			continue
		}
		pub, err := decodePublicKey(t)
		if err != nil {
			return nil, fmt.Errorf("APGMS_RPT_TRUSTED_KEYS[%d]: %w", i, err)
		}
		k.Trust(pub)
	}
	return k, nil
}

// DeriveSeed derives an Ed25519 seed from a legacy shared secret with HKDF-SHA256.
func DeriveSeed(secret string) ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(Tag), []byte(seedInfo))
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("derive rpt seed: %w", err)
	}
	return seed, nil
}

// GenerateKey returns a fresh Ed25519 key.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, err
}

// DecodeKey accepts base64 (standard or URL alphabet, padded or not) or hex.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == 2*ed25519.SeedSize || len(s) == 2*ed25519.PrivateKeySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("key is neither base64 nor hex")
}

func decodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := DecodeKey(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// KeyID is the first 8 bytes of SHA-256(pub), hex encoded.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// Trust adds pub to the accepted verify keys.
func (k *Keyring) Trust(pub ed25519.PublicKey) {
	k.trusted[KeyID(pub)] = pub
}

// CanSign reports whether the keyring holds a private key.
func (k *Keyring) CanSign() bool {
	return k != nil && k.private != nil
}

// PublicKey returns the signing key's public half.
func (k *Keyring) PublicKey() ed25519.PublicKey {
	if !k.CanSign() {
		return nil
	}
	return k.private.Public().(ed25519.PublicKey)
}

// Trusted reports whether pub is an accepted verify key.
func (k *Keyring) Trusted(pub ed25519.PublicKey) bool {
	if k == nil {
		return false
	}
	known, ok := k.trusted[KeyID(pub)]
	return ok && known.Equal(pub)
}

// Lookup returns the trusted key with id kid.
func (k *Keyring) Lookup(kid string) (ed25519.PublicKey, bool) {
	if k == nil {
		return nil, false
	}
	pub, ok := k.trusted[kid]
	return pub, ok
}

func (k *Keyring) sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}
