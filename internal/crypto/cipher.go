// Package crypto implements authenticated encryption of individual
// credential secrets. Values are stored as self-describing envelopes so
// the rest of the system can tell ciphertext from plaintext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	envelopePrefix  = "enc"
	envelopeVersion = "v1"
	envelopeSep     = ":"

	keySize   = 32 // AES-256
	nonceSize = 12 // standard GCM nonce
	tagSize   = 16

	// deriveIterations is the PBKDF2 cost for the fallback key path.
	deriveIterations = 100_000
)

// deriveSalt is fixed so the fallback key is stable across restarts.
// The fallback path is for development only; see NewCipher.
var deriveSalt = []byte("provio-secret-cipher-v1")

var (
	// ErrAuthenticationFailed means the envelope parsed but its
	// authentication tag did not verify. The value must be treated as
	// corrupt, never surfaced as plaintext.
	ErrAuthenticationFailed = errors.New("cipher: authentication failed")

	// ErrMalformedEnvelope means the value is not a structurally valid
	// envelope.
	ErrMalformedEnvelope = errors.New("cipher: malformed envelope")

	// ErrNoKeyMaterial means neither an explicit key nor a fallback
	// secret was supplied.
	ErrNoKeyMaterial = errors.New("cipher: no key material configured")
)

// Cipher encrypts and decrypts string secrets with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD

	// derived is true when the key came from the fallback derivation
	// path rather than an operator-provided key.
	derived bool
}

// NewCipher builds a Cipher from operator-supplied key material.
//
// If key is exactly 32 bytes it is used directly. Otherwise the key is
// derived from fallbackSecret with PBKDF2-SHA256. The derived path
// exists so development setups work out of the box; it is NOT suitable
// for production because the salt is fixed and the secret typically has
// low entropy. Deployments must supply a real 256-bit key.
func NewCipher(key, fallbackSecret string) (*Cipher, error) {
	var material []byte
	derived := false

	switch {
	case len(key) == keySize:
		material = []byte(key)
	case fallbackSecret != "":
		material = pbkdf2.Key([]byte(fallbackSecret), deriveSalt, deriveIterations, keySize, sha256.New)
		derived = true
	default:
		return nil, ErrNoKeyMaterial
	}

	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: init gcm: %w", err)
	}

	return &Cipher{aead: aead, derived: derived}, nil
}

// UsesDerivedKey reports whether the insecure fallback derivation path
// is active, so startup code can warn operators.
func (c *Cipher) UsesDerivedKey() bool {
	return c.derived
}

// Encrypt seals plaintext into an envelope string. A fresh random nonce
// is drawn per call. Encrypting a value that is already an envelope is
// a no-op and returns the value unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if IsEnvelope(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cipher: draw nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal appends the tag to the ciphertext; split them so the
	// envelope carries each segment explicitly.
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	b64 := base64.StdEncoding
	return strings.Join([]string{
		envelopePrefix,
		envelopeVersion,
		b64.EncodeToString(nonce),
		b64.EncodeToString(tag),
		b64.EncodeToString(ciphertext),
	}, envelopeSep), nil
}

// Decrypt opens an envelope and returns the plaintext. It returns
// ErrMalformedEnvelope for structural problems and
// ErrAuthenticationFailed when the tag does not verify. An empty
// decrypted plaintext is a valid result, not an error.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	nonce, tag, ciphertext, err := parseEnvelope(envelope)
	if err != nil {
		return "", err
	}

	sealed := append(ciphertext, tag...)
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

// IsEnvelope reports whether value is structurally a cipher envelope.
// It does not verify the authentication tag.
func IsEnvelope(value string) bool {
	_, _, _, err := parseEnvelope(value)
	return err == nil
}

func parseEnvelope(value string) (nonce, tag, ciphertext []byte, err error) {
	parts := strings.Split(value, envelopeSep)
	if len(parts) != 5 || parts[0] != envelopePrefix || parts[1] != envelopeVersion {
		return nil, nil, nil, ErrMalformedEnvelope
	}

	b64 := base64.StdEncoding
	nonce, err = b64.DecodeString(parts[2])
	if err != nil || len(nonce) != nonceSize {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	tag, err = b64.DecodeString(parts[3])
	if err != nil || len(tag) != tagSize {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	ciphertext, err = b64.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, ErrMalformedEnvelope
	}
	return nonce, tag, ciphertext, nil
}
