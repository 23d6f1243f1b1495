// Package recrypt implements the KEMv1 envelope: per-recipient encryption
// of session DEKs under ML-KEM-768 with an AES-256-GCM payload.
//
// The server never handles content plaintext. What it re-encrypts here are
// data encryption keys, and the raw DEK exists only inside the lexical
// scope of the functions in this package. Neither the DEK nor the KEM
// shared secret may ever be logged.
package recrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"golang.org/x/crypto/hkdf"
)

// Envelope layout:
//
//	[magic "KEMv1|"][salt 32B][kemCiphertext 1088B][iv 12B][hmac 32B][aesGcmCiphertext ...]
//
// The HMAC-SHA256 covers kemCiphertext followed by iv. HKDF-SHA256 of the
// KEM shared secret with the envelope salt yields 64 bytes, split into the
// AES-256 key and the HMAC key.
const (
	EnvelopeMagic = "KEMv1|"

	// PublicKeySize is the packed ML-KEM-768 public key length.
	PublicKeySize = mlkem768.PublicKeySize
	// PrivateKeySize is the packed ML-KEM-768 private key length.
	PrivateKeySize = mlkem768.PrivateKeySize

	saltSize   = 32
	kemCtSize  = mlkem768.CiphertextSize
	ivSize     = 12
	hmacSize   = 32
	gcmTagSize = 16

	headerSize = len(EnvelopeMagic) + saltSize + kemCtSize + ivSize + hmacSize

	hkdfInfo = "ML-KEM-768-AES-HMAC"
)

// Envelope decode and authentication errors.
var (
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrUnknownVersion  = errors.New("unknown envelope version")
	ErrAuthFailure     = errors.New("envelope authentication failed")
	ErrInvalidKey      = errors.New("invalid key material")
)

var scheme = mlkem768.Scheme()

// GenerateKeyPair returns a fresh ML-KEM-768 keypair in packed form.
func GenerateKeyPair() (publicKey, privateKey []byte, err error) {
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	publicKey, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("pack public key: %w", err)
	}
	privateKey, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("pack private key: %w", err)
	}
	return publicKey, privateKey, nil
}

// EncryptDEK seals a DEK to a recipient's public key and returns a KEMv1
// envelope with fresh salt and iv.
func EncryptDEK(dek, recipientPublicKey []byte) ([]byte, error) {
	if len(recipientPublicKey) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d",
			ErrInvalidKey, PublicKeySize, len(recipientPublicKey))
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(recipientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack public key", ErrInvalidKey)
	}

	kemCiphertext, sharedSecret, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, fmt.Errorf("encapsulate: %w", err)
	}
	defer Zero(sharedSecret)

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	aesKey, hmacKey, err := deriveKeys(sharedSecret, salt)
	if err != nil {
		return nil, err
	}
	defer Zero(aesKey)
	defer Zero(hmacKey)

	aead, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, iv, dek, nil)
	mac := computeMAC(hmacKey, kemCiphertext, iv)

	out := make([]byte, 0, headerSize+len(ciphertext))
	out = append(out, EnvelopeMagic...)
	out = append(out, salt...)
	out = append(out, kemCiphertext...)
	out = append(out, iv...)
	out = append(out, mac...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptDEK opens a KEMv1 envelope with the recipient's private key.
//
// The HMAC is verified in constant time before the payload is touched.
// ML-KEM decapsulation rejects implicitly, so a tampered kemCiphertext
// surfaces as ErrAuthFailure at the HMAC check rather than earlier.
//
// The returned DEK is sensitive; callers outside this package must wipe it
// with Zero before returning.
func DecryptDEK(envelope, recipientPrivateKey []byte) ([]byte, error) {
	env, err := parseEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	if len(recipientPrivateKey) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrInvalidKey, PrivateKeySize, len(recipientPrivateKey))
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(recipientPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack private key", ErrInvalidKey)
	}

	sharedSecret, err := scheme.Decapsulate(sk, env.kemCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}
	defer Zero(sharedSecret)

	aesKey, hmacKey, err := deriveKeys(sharedSecret, env.salt)
	if err != nil {
		return nil, err
	}
	defer Zero(aesKey)
	defer Zero(hmacKey)

	if !hmac.Equal(computeMAC(hmacKey, env.kemCiphertext, env.iv), env.mac) {
		return nil, ErrAuthFailure
	}

	aead, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	dek, err := aead.Open(nil, env.iv, env.ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return dek, nil
}

// Recrypt re-addresses an envelope: it opens encryptedDek with the author's
// private key and seals the DEK to the new recipient's public key. The
// intermediate DEK is wiped before returning.
func Recrypt(encryptedDek, authorPrivateKey, newRecipientPublicKey []byte) ([]byte, error) {
	dek, err := DecryptDEK(encryptedDek, authorPrivateKey)
	if err != nil {
		return nil, err
	}
	defer Zero(dek)
	return EncryptDEK(dek, newRecipientPublicKey)
}

// Zero overwrites b with zeros. Key material and DEKs held outside the
// kernel must be wiped with this once they are no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

type envelope struct {
	salt          []byte
	kemCiphertext []byte
	iv            []byte
	mac           []byte
	ciphertext    []byte
}

// parseEnvelope splits a KEMv1 envelope into its fields without copying.
// Fixed-width fields are exact; the trailing ciphertext must at least hold
// a GCM tag.
func parseEnvelope(data []byte) (*envelope, error) {
	if len(data) < len(EnvelopeMagic) {
		return nil, ErrInvalidEnvelope
	}
	if !bytes.Equal(data[:len(EnvelopeMagic)], []byte(EnvelopeMagic)) {
		return nil, ErrUnknownVersion
	}
	if len(data) < headerSize+gcmTagSize {
		return nil, ErrInvalidEnvelope
	}

	off := len(EnvelopeMagic)
	env := &envelope{}
	env.salt = data[off : off+saltSize]
	off += saltSize
	env.kemCiphertext = data[off : off+kemCtSize]
	off += kemCtSize
	env.iv = data[off : off+ivSize]
	off += ivSize
	env.mac = data[off : off+hmacSize]
	off += hmacSize
	env.ciphertext = data[off:]
	return env, nil
}

// deriveKeys expands the KEM shared secret into the AES and HMAC keys.
func deriveKeys(sharedSecret, salt []byte) (aesKey, hmacKey []byte, err error) {
	kdf := hkdf.New(sha256.New, sharedSecret, salt, []byte(hkdfInfo))
	keys := make([]byte, 64)
	if _, err := io.ReadFull(kdf, keys); err != nil {
		return nil, nil, fmt.Errorf("derive keys: %w", err)
	}
	return keys[:32], keys[32:], nil
}

func computeMAC(hmacKey, kemCiphertext, iv []byte) []byte {
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(kemCiphertext)
	mac.Write(iv)
	return mac.Sum(nil)
}

func newGCM(aesKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}
