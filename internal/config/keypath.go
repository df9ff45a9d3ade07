package config

import (
	"fmt"
	"strings"
)

// KeyPath addresses one value in the raw YAML document, e.g.
// "reconnect.baseMs" → ["reconnect", "baseMs"].
type KeyPath []string

// ParseKeyPath splits a dotted key. Segments must be non-empty and use only
// letters, digits, '_' or '-'.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	segs := strings.Split(raw, ".")
	for i, seg := range segs {
		if seg == "" {
			return nil, &ConfigError{Message: fmt.Sprintf("config key %q has an empty segment at position %d", raw, i+1)}
		}
		if r, ok := badKeyRune(seg); ok {
			return nil, &ConfigError{Message: fmt.Sprintf("config key %q contains %q", raw, r)}
		}
	}
	return KeyPath(segs), nil
}

func badKeyRune(seg string) (rune, bool) {
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return r, true
		}
	}
	return 0, false
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// Lookup returns the value at k. Sections come back as maps.
func (k KeyPath) Lookup(doc map[string]any) (any, bool) {
	var cur any = doc
	for _, seg := range k {
		section, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = section[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores v at k. Missing sections are created and scalars standing where
// a section is needed are replaced.
func (k KeyPath) Set(doc map[string]any, v any) {
	section := doc
	for _, seg := range k[:len(k)-1] {
		child, ok := section[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			section[seg] = child
		}
		section = child
	}
	section[k[len(k)-1]] = v
}

// Delete removes the value at k and any sections left empty by the removal.
// It reports whether anything was there.
func (k KeyPath) Delete(doc map[string]any) bool {
	return deleteIn(doc, k)
}

func deleteIn(section map[string]any, k KeyPath) bool {
	if len(k) == 1 {
		if _, ok := section[k[0]]; !ok {
			return false
		}
		delete(section, k[0])
		return true
	}
	child, ok := section[k[0]].(map[string]any)
	if !ok || !deleteIn(child, k[1:]) {
		return false
	}
	if len(child) == 0 {
		delete(section, k[0])
	}
	return true
}
