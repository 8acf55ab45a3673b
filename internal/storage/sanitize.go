package storage

import "strings"

// SanitizeMap strips keys beginning with the reserved operator sigil '$'
// from a caller-supplied map, recursively through nested maps and list
// elements. The input is not modified. Nil input stays nil.
func SanitizeMap(input map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	out := make(map[string]interface{}, len(input))
	for key, value := range input {
		if strings.HasPrefix(key, "$") {
			continue
		}
		out[key] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return SanitizeMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = sanitizeValue(elem)
		}
		return out
	default:
		return value
	}
}

// SanitizeStringMap strips '$'-prefixed keys from a flat string map
func SanitizeStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		if strings.HasPrefix(key, "$") {
			continue
		}
		out[key] = value
	}
	return out
}
