package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cuemby/homie/pkg/job"
	"github.com/cuemby/homie/pkg/wire"
)

// DefaultTimeout is the connect+wait deadline a Client applies when none
// is given.
const DefaultTimeout = 600 * time.Second

// Client submits jobs and issues kill/list requests to homie peers over
// the raw TCP worker protocol.
type Client struct {
	secret  []byte
	timeout time.Duration
}

// New creates a Client that authenticates with secret and applies
// timeout to every connection it opens. A zero timeout uses DefaultTimeout.
func New(secret []byte, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{secret: secret, timeout: timeout}
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(c.timeout))
	return conn, nil
}

// Submit sends j to addr and returns its outcome. It never returns a Go
// error: a dial failure, a deadline, or an early EOF all become a
// populated job.JobResult, matching the shape a job that actually ran
// and failed would produce. onStdout/onStderr, if non-nil, are called
// with each chunk of their respective output stream as it arrives.
func (c *Client) Submit(ctx context.Context, addr string, j *job.Job, onStdout, onStderr func([]byte)) *job.JobResult {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return job.ErrorResult(j.ID, err.Error())
	}
	defer conn.Close()

	body, err := job.Serialize(j, c.secret)
	if err != nil {
		return job.ErrorResult(j.ID, fmt.Sprintf("failed to serialize job: %v", err))
	}

	if err := wire.WriteKindFrame(conn, wire.KindJob, body); err != nil {
		return job.ErrorResult(j.ID, transportErrorMessage(err))
	}

	for {
		kind, err := wire.ReadKind(conn)
		if err != nil {
			return job.ErrorResult(j.ID, transportErrorMessage(err))
		}

		switch kind {
		case wire.KindStdout:
			chunk, err := wire.ReadFrame(conn)
			if err != nil {
				return job.ErrorResult(j.ID, transportErrorMessage(err))
			}
			if onStdout != nil {
				onStdout(chunk)
			}
		case wire.KindStderr:
			chunk, err := wire.ReadFrame(conn)
			if err != nil {
				return job.ErrorResult(j.ID, transportErrorMessage(err))
			}
			if onStderr != nil {
				onStderr(chunk)
			}
		case wire.KindResult:
			resultBody, err := wire.ReadFrame(conn)
			if err != nil {
				return job.ErrorResult(j.ID, transportErrorMessage(err))
			}
			result, err := job.DeserializeResult(resultBody)
			if err != nil {
				return job.ErrorResult(j.ID, fmt.Sprintf("failed to decode job result: %v", err))
			}
			return result
		default:
			return job.ErrorResult(j.ID, fmt.Sprintf("unexpected frame kind %q from peer", kind))
		}
	}
}

// Kill sends a kill request for jobID to addr, authenticated as
// requester. It returns false on any I/O error, exactly as it does when
// the peer itself refuses the kill.
func (c *Client) Kill(ctx context.Context, addr, jobID, requester string) bool {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	body, err := json.Marshal(job.NewKillRequest(c.secret, jobID, requester))
	if err != nil {
		return false
	}
	if err := wire.WriteKindFrame(conn, wire.KindKill, body); err != nil {
		return false
	}

	status := make([]byte, 1)
	if _, err := io.ReadFull(conn, status); err != nil {
		return false
	}
	return status[0] == wire.StatusOK
}

// List requests the running-jobs table from addr. The second return
// value is false if the peer is unreachable or rejects the request.
func (c *Client) List(ctx context.Context, addr string) ([]job.JobSummary, bool) {
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	body, err := json.Marshal(job.NewListRequest(c.secret))
	if err != nil {
		return nil, false
	}
	if err := wire.WriteKindFrame(conn, wire.KindList, body); err != nil {
		return nil, false
	}

	status := make([]byte, 1)
	if _, err := io.ReadFull(conn, status); err != nil {
		return nil, false
	}
	if status[0] != wire.StatusOK {
		return nil, false
	}

	respBody, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, false
	}
	var resp job.ListResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, false
	}
	return resp.Jobs, true
}

// transportErrorMessage maps a low-level I/O error to the error text
// carried by the client's synthesized JobResult.
func transportErrorMessage(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Connection timed out"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "Connection closed by peer"
	}
	return err.Error()
}
