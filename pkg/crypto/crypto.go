// Package crypto provides the HMAC-SHA256 signing and verification
// primitives that authenticate every message on the wire: discovery
// heartbeats, and job/kill/list auth tokens. All comparisons are
// constant-time.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON re-marshals v with its keys in lexicographic order, so
// both ends of the wire sign byte-identical encodings. v must marshal
// to a JSON object.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("canonicalize: value is not a JSON object: %w", err)
	}

	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, _ := json.Marshal(k)
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, asMap[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// sign computes HMAC-SHA256(secret, message).
func sign(secret []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// SignHeartbeat signs the canonical JSON encoding of a heartbeat body.
func SignHeartbeat(secret []byte, heartbeat any) ([]byte, error) {
	canonical, err := CanonicalJSON(heartbeat)
	if err != nil {
		return nil, err
	}
	return sign(secret, canonical), nil
}

// VerifyHeartbeat reports whether sig is the correct HMAC-SHA256 over
// the canonical JSON encoding of heartbeat under secret, using a
// constant-time comparison.
func VerifyHeartbeat(secret []byte, heartbeat any, sig []byte) bool {
	want, err := SignHeartbeat(secret, heartbeat)
	if err != nil {
		return false
	}
	return hmac.Equal(want, sig)
}

// SignAuth signs the ASCII message "{id}:{timestamp}" used for job,
// kill, and list auth tokens.
func SignAuth(secret []byte, id string, timestamp int64) []byte {
	message := fmt.Sprintf("%s:%d", id, timestamp)
	return sign(secret, []byte(message))
}

// VerifyAuth reports whether sig is the correct HMAC-SHA256 over
// "{id}:{timestamp}" under secret, using a constant-time comparison.
func VerifyAuth(secret []byte, id string, timestamp int64, sig []byte) bool {
	want := SignAuth(secret, id, timestamp)
	return hmac.Equal(want, sig)
}
