package util

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash is a short, stable fingerprint of content.
func ContentHash(content []byte) string {
	hash := sha256.New()
	hash.Write(content)
	return fmt.Sprintf("%x", hash.Sum(nil))[:12]
}
