package proxy

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"

	"github.com/jackpal/bencode-go"
)

// CacheKey is the hex sha256 of the bencoded parameter map. Bencode dictionaries
// are written with sorted keys, so the key does not depend on parameter order.
// Single values encode as strings, repeated ones as lists.
func CacheKey(params url.Values) (string, error) {
	m := make(map[string]any, len(params))
	for k, v := range params {
		switch len(v) {
		case 0:
		case 1:
			m[k] = v[0]
		default:
			m[k] = v
		}
	}
	h := sha256.New()
	if err := bencode.Marshal(h, m); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
