package job

import (
	"encoding/hex"
	"time"

	"github.com/cuemby/homie/pkg/crypto"
)

// listAuthSubject is the fixed first field of the "list" auth message:
// the HMAC signs ASCII "list:{timestamp}".
const listAuthSubject = "list"

// AuthToken is the HMAC + timestamp pair carried by kill and list
// requests, distinct from the job envelope's auth which signs over the
// job's own id and timestamp fields.
type AuthToken struct {
	HMAC      string `json:"hmac"`
	Timestamp int64  `json:"timestamp"`
}

func newAuthToken(secret []byte, subject string) AuthToken {
	ts := time.Now().Unix()
	sig := crypto.SignAuth(secret, subject, ts)
	return AuthToken{HMAC: hex.EncodeToString(sig), Timestamp: ts}
}

func (a AuthToken) verify(secret []byte, subject string) bool {
	sig, err := hex.DecodeString(a.HMAC)
	if err != nil {
		return false
	}
	if !crypto.VerifyAuth(secret, subject, a.Timestamp, sig) {
		return false
	}
	now := time.Now().Unix()
	skew := now - a.Timestamp
	if skew < 0 {
		skew = -skew
	}
	return skew <= MaxClockSkewSeconds
}

// KillRequest is the body of a 'K' frame.
type KillRequest struct {
	JobID     string    `json:"job_id"`
	Requester string    `json:"requester"`
	Auth      AuthToken `json:"auth"`
}

// NewKillRequest builds and signs a kill request for jobID on behalf of
// requester.
func NewKillRequest(secret []byte, jobID, requester string) KillRequest {
	return KillRequest{
		JobID:     jobID,
		Requester: requester,
		Auth:      newAuthToken(secret, jobID),
	}
}

// Verify reports whether r's HMAC matches secret and its timestamp is
// within the clock-skew tolerance.
func (r KillRequest) Verify(secret []byte) bool {
	return r.Auth.verify(secret, r.JobID)
}

// ListRequest is the body of an 'L' frame.
type ListRequest struct {
	Auth AuthToken `json:"auth"`
}

// NewListRequest builds and signs a list request.
func NewListRequest(secret []byte) ListRequest {
	return ListRequest{Auth: newAuthToken(secret, listAuthSubject)}
}

// Verify reports whether r's HMAC matches secret and its timestamp is
// within the clock-skew tolerance.
func (r ListRequest) Verify(secret []byte) bool {
	return r.Auth.verify(secret, listAuthSubject)
}

// JobSummary is one entry of a list response, the wire shape of a
// running job.
type JobSummary struct {
	JobID     string    `json:"job_id"`
	Sender    string    `json:"sender"`
	Filename  string    `json:"filename"`
	StartTime time.Time `json:"start_time"`
}

// ListResponse is the JSON payload that follows a '1' status byte on a
// successful list request.
type ListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}
