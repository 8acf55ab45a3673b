package common

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ComputeContentHash returns the SHA-256 hex digest of content (UTF-8).
// Every write of a content field stores this alongside it as content_hash.
func ComputeContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IsContentHash reports whether s looks like a SHA-256 hex digest.
func IsContentHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Fingerprint returns the SHA-256 hex digest of a canonical JSON encoding of
// the given parts. Map keys are emitted in sorted order so identical logical
// values always produce identical fingerprints.
func Fingerprint(parts ...interface{}) string {
	canonical := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		canonical = append(canonical, canonicalize(p))
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		// Fall back to the formatted value; still deterministic for the
		// string/map inputs fingerprints are built from.
		data = []byte(fmt.Sprintf("%v", canonical))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize converts maps into key-sorted slices of [key, value] pairs so
// that json.Marshal output is independent of map iteration order.
func canonicalize(v interface{}) interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([][2]interface{}, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, [2]interface{}{k, canonicalize(m[k])})
		}
		return pairs
	case map[string]string:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([][2]interface{}, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, [2]interface{}{k, m[k]})
		}
		return pairs
	case []interface{}:
		out := make([]interface{}, len(m))
		for i, e := range m {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}
