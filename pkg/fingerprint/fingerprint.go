// Package fingerprint derives deterministic content hashes. The reference-set
// snapshot hash versions a fitted match index: when the live table's hash no
// longer equals the one the index was built from, the index is stale and must
// be refit.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/sage/pkg/models"
)

// Snapshot fingerprints a reference entry list. Order-insensitive: two
// snapshots with the same rows hash identically regardless of scan order.
func Snapshot(entries []models.ReferenceEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%d\x1f%s\x1f%s", e.ID, e.Name, e.ShortName))
	}
	sort.Strings(lines)

	hash := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(hash[:])
}

// Attributes creates a deterministic fingerprint of an attribute map: a
// SHA256 over canonical JSON with sorted keys. Emitted with record lifecycle
// events so consumers can cheaply detect payload changes.
func Attributes(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// AttributesFromJSON fingerprints raw JSON attributes.
func AttributesFromJSON(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return Attributes(nil), nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return Attributes(m), nil
}

// canonicalize creates a deterministic string representation of a value by
// sorting map keys and recursively processing nested structures.
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		// For primitives, use JSON encoding
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		keyJSON, _ := json.Marshal(k)
		b.Write(keyJSON)
		b.WriteString(":")
		b.WriteString(canonicalize(m[k]))
	}
	b.WriteString("}")
	return b.String()
}

func canonicalizeArray(arr []any) string {
	var b strings.Builder
	b.WriteString("[")
	for i, v := range arr {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(canonicalize(v))
	}
	b.WriteString("]")
	return b.String()
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
