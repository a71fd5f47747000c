// Package canonical implements deterministic payload hashing.
//
// Payloads are serialized with the JSON Canonicalization Scheme (RFC 8785):
// keys sorted lexicographically, no insignificant whitespace, minimal string
// escaping with non-ASCII passed through as raw UTF-8. Two structurally equal
// payloads always canonicalize to byte-identical output, which makes the
// SHA-256 digests produced here stable across processes and machines.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DigestField is the payload key that, when present, declares the payload's
// own leaf hash. See LeafHash.
const DigestField = "digest"

// ErrInvalidPayload indicates a payload that cannot be represented in
// canonical JSON form (e.g. it contains a channel, func, or NaN value).
var ErrInvalidPayload = errors.New("payload not representable as canonical JSON")

// Canonicalize serializes a payload to its canonical RFC 8785 byte form.
func Canonicalize(payload map[string]any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	// encoding/json escapes HTML characters and may format numbers
	// differently; the JCS transform re-serializes to the canonical form.
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return canon, nil
}

// ComputeHash returns the lowercase hex SHA-256 digest of the payload's
// canonical form. It is a pure function of the payload's structure.
func ComputeHash(payload map[string]any) (string, error) {
	canon, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return Sum256Hex(canon), nil
}

// LeafHash derives the hash under which a payload enters a Merkle tree.
//
// Two explicit branches:
//   - declared: the payload carries a non-empty string "digest" field, which
//     is returned verbatim. Upstream producers may pre-hash under their own
//     canonicalization scope; their digest is trusted as-is.
//   - computed: SHA-256 of the canonical form with the "digest" key removed,
//     so the hash never covers itself.
func LeafHash(payload map[string]any) (string, error) {
	if d, ok := payload[DigestField].(string); ok && d != "" {
		return d, nil
	}
	if _, ok := payload[DigestField]; !ok {
		return ComputeHash(payload)
	}
	stripped := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == DigestField {
			continue
		}
		stripped[k] = v
	}
	return ComputeHash(stripped)
}

// Sum256Hex returns the hex-encoded SHA-256 digest of data.
func Sum256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
