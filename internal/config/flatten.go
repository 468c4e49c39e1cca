package config

import "strings"

// secretKeys lists the dot-separated keys whose values are masked in output.
var secretKeys = map[string]bool{
	"llm.api_key": true,
	"store.token": true,
}

// IsSecretKey reports whether the dot-separated key holds a secret.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten converts a nested map into a flat map keyed by dot-separated paths,
// so {"llm": {"model": "gpt-4o-mini"}} becomes {"llm.model": "gpt-4o-mini"}.
func Flatten(nested map[string]any) map[string]any {
	type frame struct {
		prefix string
		m      map[string]any
	}
	out := make(map[string]any)
	work := []frame{{"", nested}}
	for len(work) > 0 {
		f := work[len(work)-1]
		work = work[:len(work)-1]
		for k, v := range f.m {
			key := k
			if f.prefix != "" {
				key = f.prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				work = append(work, frame{key, child})
				continue
			}
			out[key] = v
		}
	}
	return out
}

// Unflatten rebuilds the nested map from dot-separated keys.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		leaf := parts[len(parts)-1]
		dig(out, parts[:len(parts)-1])[leaf] = v
	}
	return out
}

// dig walks the branch maps along path, creating them as needed, and returns
// the innermost. A leaf value sitting where a branch is needed is replaced.
func dig(m map[string]any, path []string) map[string]any {
	for _, part := range path {
		child, ok := m[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[part] = child
		}
		m = child
	}
	return m
}

// MaskSecrets returns a copy of the flat map with secret string values
// reduced to "***" plus their last 4 characters. Empty and non-string secret
// values pass through unchanged.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		if !secretKeys[k] {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if cut := len(s) - 4; cut > 0 {
			s = s[cut:]
		}
		out[k] = "***" + s
	}
	return out
}
