// Copyright (c) 2025 The quaisuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// canonicalKey reduces a raw JSON-RPC result to a canonical string so that
// results from independent backends can be compared for agreement. Backends
// legitimately disagree on representation: hex casing (checksummed vs plain
// addresses), zero padding of quantities, object key order, and number
// encodings. Two results that differ only in representation must produce the
// same key.
func canonicalKey(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decoding result for comparison: %w", err)
	}

	out, err := json.Marshal(canonicalize(v))
	if err != nil {
		return "", fmt.Errorf("re-encoding result for comparison: %w",
			err)
	}

	return string(out), nil
}

// canonicalize rewrites a decoded JSON value into its canonical form.
// encoding/json marshals map keys in sorted order, which takes care of
// object key ordering for free.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = canonicalize(val)
		}
		return m

	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = canonicalize(val)
		}
		return s

	case string:
		return canonicalHex(t)

	case json.Number:
		return t

	default:
		return v
	}
}

// canonicalHex lowercases 0x-prefixed strings and strips leading zeros from
// the digits, mapping "0x0A" and "0xa" to the same form. Non-hex strings are
// returned unchanged. Fixed-width values such as hashes lose their padding
// too, which is fine: the key is used only for equality between normalized
// values, never surfaced.
func canonicalHex(s string) string {
	if len(s) < 2 || (s[0] != '0') || (s[1] != 'x' && s[1] != 'X') {
		return s
	}

	digits := strings.ToLower(s[2:])
	for _, c := range digits {
		valid := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !valid {
			return s
		}
	}

	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		trimmed = "0"
	}

	return "0x" + trimmed
}
