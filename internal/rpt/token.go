package rpt

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/platform/clock"
)

const (
	TokenType    = "rpt"
	TokenVersion = 1

	// DefaultGrace is the clock skew tolerated on expiry_ts at verify.
	DefaultGrace = 30 * time.Second
)

type envelope struct {
	T   string `cbor:"t"`
	V   int    `cbor:"v"`
	P   []byte `cbor:"p"`
	S   []byte `cbor:"s"`
	Sig []byte `cbor:"sig"`
}

func signingInput(payload []byte) []byte {
	msg := make([]byte, 0, len(Tag)+len(payload))
	msg = append(msg, Tag...)
	return append(msg, payload...)
}

// Issued is the output of Issue.
type Issued struct {
	Token         string
	KeyID         string
	Payload       []byte
	PayloadC14N   []byte
	PayloadSHA256 string
	// DetachedSignature signs Tag || PayloadC14N.
	DetachedSignature []byte
}

// Issuer signs claim sets with the keyring's private key.
type Issuer struct {
	keyring *Keyring
}

func NewIssuer(keyring *Keyring) *Issuer {
	return &Issuer{keyring: keyring}
}

// Issue validates, encodes and signs claims.
func (i *Issuer) Issue(c Claims) (*Issued, error) {
	if !i.keyring.CanSign() {
		return nil, apperrors.New(apperrors.CodeInternal, "no rpt signing key configured")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	payload, err := EncodePayload(c)
	if err != nil {
		return nil, err
	}
	c14n, err := c.Canonical()
	if err != nil {
		return nil, err
	}

	pub := i.keyring.PublicKey()
	env := envelope{
		T:   TokenType,
		V:   TokenVersion,
		P:   payload,
		S:   pub,
		Sig: i.keyring.sign(signingInput(payload)),
	}
	raw, err := encMode.Marshal(env)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "envelope could not be encoded", err)
	}
	sum := sha256.Sum256(c14n)
	return &Issued{
		Token:             base64.RawURLEncoding.EncodeToString(raw),
		KeyID:             KeyID(pub),
		Payload:           payload,
		PayloadC14N:       c14n,
		PayloadSHA256:     hex.EncodeToString(sum[:]),
		DetachedSignature: i.keyring.sign(signingInput(c14n)),
	}, nil
}

// Token is a decoded envelope.
type Token struct {
	Claims    Claims
	Payload   []byte
	VerifyKey ed25519.PublicKey
	Signature []byte
}

// KeyID identifies the embedded verify key.
func (t *Token) KeyID() string {
	return KeyID(t.VerifyKey)
}

// Expiry returns expiry_ts as a time.
func (t *Token) Expiry() time.Time {
	return time.Unix(t.Claims.ExpiryTS, 0).UTC()
}

func decodeEnvelope(token string) (*envelope, error) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" {
		return nil, malformed("token is empty")
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRPTMalformed, "token is not base64url", err)
	}
	var env envelope
	if err := decMode.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRPTMalformed, "token is not a CBOR envelope", err)
	}
	if env.T != TokenType || env.V != TokenVersion {
		return nil, malformed("unsupported envelope t=%q v=%d", env.T, env.V)
	}
	if len(env.S) != ed25519.PublicKeySize {
		return nil, malformed("verify key has %d bytes", len(env.S))
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return nil, malformed("signature has %d bytes", len(env.Sig))
	}
	return &env, nil
}

// Decode parses a token without checking its signature, trust or expiry.
func Decode(token string) (*Token, error) {
	env, err := decodeEnvelope(token)
	if err != nil {
		return nil, err
	}
	claims, err := DecodePayload(env.P)
	if err != nil {
		return nil, err
	}
	return &Token{Claims: claims, Payload: env.P, VerifyKey: env.S, Signature: env.Sig}, nil
}

// ReplayGuard is the jti registry consulted at verify. Consume must be an
// atomic check-and-insert returning RPT_REPLAYED when nonce was seen.
type ReplayGuard interface {
	Consume(ctx context.Context, nonce string, ttl time.Duration) error
}

// Verifier checks tokens against a keyring and clock.
type Verifier struct {
	keyring *Keyring
	clock   clock.Clock
	grace   time.Duration
	guard   ReplayGuard
}

type VerifierOption func(*Verifier)

// WithGrace overrides DefaultGrace.
func WithGrace(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.grace = d
	}
}

// WithReplayGuard enables jti consumption on Verify.
func WithReplayGuard(g ReplayGuard) VerifierOption {
	return func(v *Verifier) {
		v.guard = g
	}
}

func NewVerifier(keyring *Keyring, clk clock.Clock, opts ...VerifierOption) *Verifier {
	v := &Verifier{keyring: keyring, clock: clk, grace: DefaultGrace}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify decodes token, checks the signature against a trusted key, enforces
// expiry and finally consumes the nonce if a replay guard is configured.
func (v *Verifier) Verify(ctx context.Context, token string) (*Token, error) {
	env, err := decodeEnvelope(token)
	if err != nil {
		return nil, err
	}
	pub := ed25519.PublicKey(env.S)
	if !v.keyring.Trusted(pub) {
		return nil, apperrors.Newf(apperrors.CodeRPTSignatureInvalid, "verify key %s is not trusted", KeyID(pub))
	}
	if !ed25519.Verify(pub, signingInput(env.P), env.Sig) {
		return nil, apperrors.New(apperrors.CodeRPTSignatureInvalid, "signature does not verify")
	}
	claims, err := DecodePayload(env.P)
	if err != nil {
		return nil, err
	}

	now := v.clock.Now()
	expiry := time.Unix(claims.ExpiryTS, 0)
	if expiry.Before(now.Add(-v.grace)) {
		return nil, apperrors.Newf(apperrors.CodeRPTExpired, "token expired at %s", expiry.UTC().Format(time.RFC3339))
	}

	if v.guard != nil {
		// The nonce must outlive the last instant Verify accepts the token.
		ttl := expiry.Add(v.grace).Sub(now)
		if ttl < v.grace {
			ttl = v.grace
		}
		if err := v.guard.Consume(ctx, claims.Nonce, ttl); err != nil {
			return nil, err
		}
	}
	return &Token{Claims: claims, Payload: env.P, VerifyKey: pub, Signature: env.Sig}, nil
}

// SignDetached signs Tag || payloadC14N with the keyring's private key.
func (k *Keyring) SignDetached(payloadC14N []byte) ([]byte, error) {
	if !k.CanSign() {
		return nil, apperrors.New(apperrors.CodeInternal, "no rpt signing key configured")
	}
	return k.sign(signingInput(payloadC14N)), nil
}

// VerifyDetached checks a detached signature over Tag || payloadC14N and
// returns the payload's SHA-256 hex digest.
func VerifyDetached(pub ed25519.PublicKey, payloadC14N, signature []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", apperrors.Newf(apperrors.CodeRPTMalformed, "public key has %d bytes", len(pub))
	}
	if len(signature) != ed25519.SignatureSize {
		return "", apperrors.Newf(apperrors.CodeRPTMalformed, "signature has %d bytes", len(signature))
	}
	if !ed25519.Verify(pub, signingInput(payloadC14N), signature) {
		return "", apperrors.New(apperrors.CodeRPTSignatureInvalid, "signature does not verify")
	}
	sum := sha256.Sum256(payloadC14N)
	return hex.EncodeToString(sum[:]), nil
}
