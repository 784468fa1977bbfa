package crypto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	type heartbeat struct {
		Zeta  string `json:"zeta"`
		Alpha int    `json:"alpha"`
	}

	out, err := CanonicalJSON(heartbeat{Zeta: "z", Alpha: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":1,"zeta":"z"}`, string(out))
}

func TestCanonicalJSONIsOrderIndependent(t *testing.T) {
	a := map[string]any{"name": "a", "port": 5555, "cpu_percent_used": 10.0}
	b := map[string]any{"port": 5555, "cpu_percent_used": 10.0, "name": "a"}

	outA, err := CanonicalJSON(a)
	require.NoError(t, err)
	outB, err := CanonicalJSON(b)
	require.NoError(t, err)

	assert.Equal(t, outA, outB)
}

func TestVerifyHeartbeatRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef")
	heartbeat := map[string]any{"name": "a", "status": "idle"}

	sig, err := SignHeartbeat(secret, heartbeat)
	require.NoError(t, err)

	assert.True(t, VerifyHeartbeat(secret, heartbeat, sig))
}

func TestVerifyHeartbeatRejectsWrongSecret(t *testing.T) {
	heartbeat := map[string]any{"name": "a", "status": "idle"}

	sig, err := SignHeartbeat([]byte("0123456789abcdef"), heartbeat)
	require.NoError(t, err)

	assert.False(t, VerifyHeartbeat([]byte("fedcba9876543210"), heartbeat, sig))
}

func TestVerifyHeartbeatRejectsTamperedBody(t *testing.T) {
	secret := []byte("0123456789abcdef")
	heartbeat := map[string]any{"name": "a", "status": "idle"}

	sig, err := SignHeartbeat(secret, heartbeat)
	require.NoError(t, err)

	tampered := map[string]any{"name": "a", "status": "busy"}
	assert.False(t, VerifyHeartbeat(secret, tampered, sig))
}

func TestVerifyAuthRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef")
	sig := SignAuth(secret, "deadbeef", 1700000000)

	assert.True(t, VerifyAuth(secret, "deadbeef", 1700000000, sig))
	assert.False(t, VerifyAuth(secret, "deadbeef", 1700000001, sig))
	assert.False(t, VerifyAuth(secret, "other-id", 1700000000, sig))
}

func TestCanonicalJSONRejectsNonObject(t *testing.T) {
	_, err := CanonicalJSON([]int{1, 2, 3})
	require.Error(t, err)
}

func TestCanonicalJSONIsValidJSON(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"a": 1, "b": "two"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
}
