package types

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// PublicKey is an opaque key identifier owned by the encryption layer.
type PublicKey []byte

// PublicKeyFromBase64 decodes a standard base64 encoded key.
func PublicKeyFromBase64(encoded string) (PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode public key: empty key")
	}
	return PublicKey(raw), nil
}

// String returns the standard base64 encoding of the key.
func (k PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(k)
}

func (k PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(k, other)
}
