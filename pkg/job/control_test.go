package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKillRequestVerifiesWithCorrectSecret(t *testing.T) {
	secret := []byte("0123456789abcdef")
	req := NewKillRequest(secret, "abc123ef", "alice")
	assert.True(t, req.Verify(secret))
	assert.False(t, req.Verify([]byte("fedcba9876543210")))
}

func TestKillRequestRejectsTamperedJobID(t *testing.T) {
	secret := []byte("0123456789abcdef")
	req := NewKillRequest(secret, "abc123ef", "alice")
	req.JobID = "ffffffff"
	assert.False(t, req.Verify(secret))
}

func TestKillRequestRejectsStaleTimestamp(t *testing.T) {
	secret := []byte("0123456789abcdef")
	req := NewKillRequest(secret, "abc123ef", "alice")
	req.Auth.Timestamp = time.Now().Add(-301 * time.Second).Unix()
	assert.False(t, req.Verify(secret))
}

func TestListRequestVerifiesWithCorrectSecret(t *testing.T) {
	secret := []byte("0123456789abcdef")
	req := NewListRequest(secret)
	assert.True(t, req.Verify(secret))
	assert.False(t, req.Verify([]byte("fedcba9876543210")))
}
