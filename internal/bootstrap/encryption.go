package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/smeltapp/smeltd/internal/data/cryptoutil"
)

const aesKeyLen = 32

// CreateEncryptor builds the AES-GCM encryptor guarding stored provider
// credentials. A 64-char hex key is used verbatim; any other non-empty
// value is treated as a passphrase and hashed to key length. With no key,
// or a key the cipher rejects, credentials fall back to plaintext storage
// behind a noop encryptor. Dev setups run that way on purpose.
//
//nolint:ireturn // callers only ever see the Encryptor interface.
func CreateEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if key == "" {
		warnNoop(logger, "credential encryption key not set", nil)
		return &cryptoutil.NoopEncryptor{}
	}

	enc, err := cryptoutil.NewAESGCMEncryptor(deriveKey(key))
	if err != nil {
		warnNoop(logger, "credential encryption key rejected", err)
		return &cryptoutil.NoopEncryptor{}
	}
	return enc
}

func deriveKey(key string) []byte {
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == aesKeyLen {
		return decoded
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

func warnNoop(logger *slog.Logger, reason string, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn(reason+", storing credentials unencrypted", "error", err)
		return
	}
	logger.Warn(reason + ", storing credentials unencrypted")
}
