// Package digest computes SHA-256 digests over raw bytes and canonical JSON.
package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Bytes returns the hex SHA-256 of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether data hashes to expected.
func Verify(data []byte, expected string) bool {
	return Bytes(data) == expected
}

// Canonical serializes v as compact JSON with object keys sorted at every
// depth, so equal values always produce equal bytes.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON rewrites a JSON document into canonical form.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	// encoding/json writes map keys in sorted order
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("failed to encode canonical JSON: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// JSON returns the digest of v's canonical JSON form.
func JSON(v interface{}) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return Bytes(data), nil
}

// Combined folds a set of path digests into one, independent of map order.
func Combined(hashes map[string]string) string {
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, p := range paths {
		buf.WriteString(p)
		buf.WriteByte(0)
		buf.WriteString(hashes[p])
		buf.WriteByte('\n')
	}
	return Bytes(buf.Bytes())
}
