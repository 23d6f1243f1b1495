package logger

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
)

// anonKey holds the HMAC key used to pseudonymize DIDs in log output.
// It starts as a process-random key so DIDs are never logged raw even
// before configuration is applied.
var anonKey atomic.Value // []byte

func init() {
	k := make([]byte, 32)
	if _, err := rand.Read(k); err != nil {
		panic(err)
	}
	anonKey.Store(k)
}

// SetAnonymizationKey configures the keyed digest applied to DIDs in logs.
// With a configured secret and salt the digests are stable across processes
// and restarts, so log lines for the same user remain correlatable.
func SetAnonymizationKey(secret, salt string) {
	if secret == "" {
		return
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))
	anonKey.Store(mac.Sum(nil))
}

// Anonymize returns a stable pseudonym for a DID. Every DID-valued log
// field goes through this; raw DIDs must never reach log output.
func Anonymize(did string) string {
	if did == "" {
		return ""
	}
	key, _ := anonKey.Load().([]byte)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(did))
	return "anon-" + hex.EncodeToString(mac.Sum(nil)[:8])
}
