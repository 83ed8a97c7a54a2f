package chainmon

import (
	"encoding/base64"

	uuid "github.com/hashicorp/go-uuid"
)

// callbackIDLength is the length of a generated callback id. The source
// concatenates two UUIDs (32 raw bytes) and base64-urlsafe encodes them,
// then truncates to this length.
const callbackIDLength = 32

// newCallbackID returns a fresh, URL-safe callback identifier: two
// concatenated UUIDs, base64 (url-safe, no padding) encoded and truncated to
// callbackIDLength characters.
func newCallbackID() (string, error) {
	first, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return "", err
	}
	second, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return "", err
	}

	raw := append(first, second...)
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)

	if len(encoded) > callbackIDLength {
		encoded = encoded[:callbackIDLength]
	}
	return encoded, nil
}
