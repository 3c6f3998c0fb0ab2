package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// apiTokenBytes is the entropy carried by a generated API token.
const apiTokenBytes = 24

// NewAPIToken generates an opaque API token.
func NewAPIToken() (string, error) {
	buf := make([]byte, apiTokenBytes)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("generate api token: %w", errRead)
	}
	return "udt-" + hex.EncodeToString(buf), nil
}
