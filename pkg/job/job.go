// Package job defines the immutable Job request and JobResult outcome
// records exchanged across the wire, along with the auth envelope that
// authenticates a job submission using the group secret.
package job

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/homie/pkg/crypto"
)

// ErrAuthFailed is returned by Deserialize when the HMAC does not match
// or the timestamp falls outside the ±300s clock-skew tolerance.
var ErrAuthFailed = errors.New("job authentication failed")

// MaxClockSkewSeconds is the tolerance applied to job/kill/list auth
// timestamps.
const MaxClockSkewSeconds = 300

// Job is an immutable, authenticated request to execute filename (plus
// the accompanying files) inside a constrained container on a peer.
type Job struct {
	ID         string            `json:"job_id"`
	Sender     string            `json:"sender"`
	Filename   string            `json:"filename"`
	Code       []byte            `json:"code"`
	Args       []string          `json:"args"`
	Files      map[string][]byte `json:"files"`
	RequireGPU bool              `json:"require_gpu"`
	Image      string            `json:"image"`
	Timestamp  int64             `json:"timestamp"`
}

// JobResult is the outcome of a job's execution or transport attempt.
// ExitCode -1 reserves transport/executor failure, distinct from any
// exit code a container itself can produce.
type JobResult struct {
	JobID          string            `json:"job_id"`
	ExitCode       int               `json:"exit_code"`
	Stdout         []byte            `json:"stdout"`
	Stderr         []byte            `json:"stderr"`
	OutputFiles    map[string][]byte `json:"output_files"`
	RuntimeSeconds float64           `json:"runtime_seconds"`
	Error          *string           `json:"error"`
}

// envelope is the on-wire wrapper around a Job: the job body plus its
// HMAC auth token.
type envelope struct {
	Job  Job  `json:"job"`
	Auth auth `json:"auth"`
}

type auth struct {
	HMAC string `json:"hmac"`
}

// NewID generates an 8-hex-char job id from the first 4 bytes of a
// fresh UUIDv4.
func NewID() (string, error) {
	id := uuid.New()
	return hex.EncodeToString(id[:4]), nil
}

// New constructs a Job with a fresh id and the current timestamp.
func New(sender, filename string, code []byte, args []string, files map[string][]byte, requireGPU bool, image string) (*Job, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = map[string][]byte{}
	}
	if args == nil {
		args = []string{}
	}
	return &Job{
		ID:         id,
		Sender:     sender,
		Filename:   filename,
		Code:       code,
		Args:       args,
		Files:      files,
		RequireGPU: requireGPU,
		Image:      image,
		Timestamp:  time.Now().Unix(),
	}, nil
}

// DefaultImage returns the default container image: a CUDA runtime
// image when the job requires a GPU, a plain Python image otherwise.
// Callers are free to override it; the executor never substitutes
// images on its own.
func DefaultImage(requireGPU bool) string {
	if requireGPU {
		return "nvidia/cuda:12.4.1-runtime-ubuntu22.04"
	}
	return "python:3.11-slim"
}

// Serialize wraps j in the auth envelope and signs it with secret,
// producing the JSON body of a 'J' frame.
func Serialize(j *Job, secret []byte) ([]byte, error) {
	sig := crypto.SignAuth(secret, j.ID, j.Timestamp)
	env := envelope{
		Job:  *j,
		Auth: auth{HMAC: hex.EncodeToString(sig)},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("serialize job: %w", err)
	}
	return data, nil
}

// Deserialize unwraps and verifies a serialized job envelope against
// secret. It fails with ErrAuthFailed if the HMAC does not match or the
// timestamp falls outside the ±300s tolerance.
func Deserialize(data []byte, secret []byte) (*Job, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode job envelope: %w", err)
	}

	sig, err := hex.DecodeString(env.Auth.HMAC)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed hmac", ErrAuthFailed)
	}

	if !crypto.VerifyAuth(secret, env.Job.ID, env.Job.Timestamp, sig) {
		return nil, ErrAuthFailed
	}

	now := time.Now().Unix()
	skew := now - env.Job.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkewSeconds {
		return nil, fmt.Errorf("%w: timestamp outside %ds tolerance", ErrAuthFailed, MaxClockSkewSeconds)
	}

	j := env.Job
	return &j, nil
}

// SerializeResult encodes a JobResult as the JSON body of an 'R' frame.
func SerializeResult(r *JobResult) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize job result: %w", err)
	}
	return data, nil
}

// DeserializeResult decodes the JSON body of an 'R' frame.
func DeserializeResult(data []byte) (*JobResult, error) {
	var r JobResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}
	return &r, nil
}

// ErrorResult builds a JobResult carrying a transport/executor failure,
// the shape every failure path on either side of the wire converges on.
func ErrorResult(jobID string, message string) *JobResult {
	return &JobResult{
		JobID:    jobID,
		ExitCode: -1,
		Error:    &message,
	}
}
