package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MasterKeySize is the length in bytes of the master key.
const MasterKeySize = 32

// ErrInvalidKeyLength is returned when the provided key length is invalid.
var ErrInvalidKeyLength = errors.New("invalid key length")

// ReadMasterKey decodes the hex master key from hexKey, or from the file at
// path when hexKey is empty.
func ReadMasterKey(hexKey, path string) ([]byte, error) {
	h := strings.TrimSpace(hexKey)
	if h == "" {
		if path == "" {
			return nil, fmt.Errorf("MASTER_KEY_HEX not set and no master key file configured")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("MASTER_KEY_HEX not set and %s unreadable: %w", path, err)
		}
		h = strings.TrimSpace(string(data))
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes (hex %d chars): %w", MasterKeySize, MasterKeySize*2, ErrInvalidKeyLength)
	}
	return b, nil
}

// DeriveSessionKey derives the 32-byte session signing key from the master key using HKDF-SHA256.
func DeriveSessionKey(master []byte) ([]byte, error) {
	if len(master) != MasterKeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte("session-signing"))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateMasterKey returns a fresh master key, hex encoded.
func GenerateMasterKey() string {
	return hex.EncodeToString(MustRandom(MasterKeySize))
}

// MustRandom returns n random bytes or panics.
func MustRandom(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return b
}
