package queue

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// encPrefix marks an encrypted field value in a stored payload.
const encPrefix = "enc:v1:"

// SensitiveCarrier marks payload types whose named top-level string fields
// must be encrypted before the payload is written to the jobs table.
// Private key material transiting the queue implements this.
type SensitiveCarrier interface {
	SensitiveFields() []string
}

// fieldCipher encrypts and decrypts individual payload fields with
// AES-256-GCM. The key is derived from the configured secret so operators
// can supply a passphrase of any length.
type fieldCipher struct {
	aead cipher.AEAD
}

func newFieldCipher(secret string) (*fieldCipher, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create field cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create field cipher: %w", err)
	}
	return &fieldCipher{aead: aead}, nil
}

func (c *fieldCipher) encryptValue(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *fieldCipher) decryptValue(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decode encrypted field: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("encrypted field too short")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt field: %w", err)
	}
	return string(plaintext), nil
}

// encryptFields encrypts the named top-level string fields of a JSON
// payload. Non-string and absent fields are left untouched.
func (c *fieldCipher) encryptFields(payload []byte, fields []string) ([]byte, error) {
	doc, err := decodeDocument(payload)
	if err != nil {
		return nil, err
	}
	for _, field := range fields {
		value, ok := doc[field].(string)
		if !ok {
			continue
		}
		encrypted, err := c.encryptValue(value)
		if err != nil {
			return nil, fmt.Errorf("encrypt field %q: %w", field, err)
		}
		doc[field] = encrypted
	}
	return json.Marshal(doc)
}

// decryptPayload decrypts every top-level string field carrying the
// enc:v1: marker. Payloads without markers pass through unchanged.
func (c *fieldCipher) decryptPayload(payload []byte) ([]byte, error) {
	if !bytes.Contains(payload, []byte(encPrefix)) {
		return payload, nil
	}
	doc, err := decodeDocument(payload)
	if err != nil {
		return nil, err
	}
	changed := false
	for field, raw := range doc {
		value, ok := raw.(string)
		if !ok || !strings.HasPrefix(value, encPrefix) {
			continue
		}
		plaintext, err := c.decryptValue(value)
		if err != nil {
			return nil, fmt.Errorf("decrypt field %q: %w", field, err)
		}
		doc[field] = plaintext
		changed = true
	}
	if !changed {
		return payload, nil
	}
	return json.Marshal(doc)
}

// decodeDocument parses a JSON object preserving number fidelity.
func decodeDocument(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return doc, nil
}
