package client

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/homie/pkg/job"
	"github.com/cuemby/homie/pkg/wire"
)

var testSecret = []byte("0123456789abcdef")

// startFakePeer runs handler against exactly one accepted connection and
// returns the address to dial.
func startFakePeer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()
	return ln.Addr().String()
}

func newTestJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New("alice", "main.py", []byte("print(1)"), nil, nil, false, "python:3.11-slim")
	require.NoError(t, err)
	return j
}

func TestSubmitStreamsOutputAndReturnsResult(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		kind, err := wire.ReadKind(conn)
		require.NoError(t, err)
		require.Equal(t, wire.KindJob, kind)
		_, err = wire.ReadFrame(conn)
		require.NoError(t, err)

		require.NoError(t, wire.WriteKindFrame(conn, wire.KindStdout, []byte("out1")))
		require.NoError(t, wire.WriteKindFrame(conn, wire.KindStderr, []byte("err1")))

		result := &job.JobResult{JobID: "x", ExitCode: 0, Stdout: []byte("out1")}
		data, err := job.SerializeResult(result)
		require.NoError(t, err)
		require.NoError(t, wire.WriteKindFrame(conn, wire.KindResult, data))
	})

	var stdout, stderr []byte
	c := New(testSecret, 5*time.Second)
	result := c.Submit(context.Background(), addr, newTestJob(t), func(b []byte) {
		stdout = append(stdout, b...)
	}, func(b []byte) {
		stderr = append(stderr, b...)
	})

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "out1", string(stdout))
	assert.Equal(t, "err1", string(stderr))
}

func TestSubmitSynthesizesResultOnEarlyClose(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		wire.ReadKind(conn)
		wire.ReadFrame(conn)
		// close without ever writing a result frame
	})

	c := New(testSecret, 5*time.Second)
	result := c.Submit(context.Background(), addr, newTestJob(t), nil, nil)

	require.NotNil(t, result.Error)
	assert.Equal(t, -1, result.ExitCode)
	assert.Equal(t, "Connection closed by peer", *result.Error)
}

func TestSubmitSynthesizesResultOnConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close()) // nothing listening now

	c := New(testSecret, 2*time.Second)
	result := c.Submit(context.Background(), addr, newTestJob(t), nil, nil)

	require.NotNil(t, result.Error)
	assert.Equal(t, -1, result.ExitCode)
}

func TestKillReturnsTrueOnSuccessStatus(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		wire.ReadKind(conn)
		wire.ReadFrame(conn)
		conn.Write([]byte{wire.StatusOK})
	})

	c := New(testSecret, 5*time.Second)
	assert.True(t, c.Kill(context.Background(), addr, "abc123ef", "alice"))
}

func TestKillReturnsFalseOnFailureStatus(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		wire.ReadKind(conn)
		wire.ReadFrame(conn)
		conn.Write([]byte{wire.StatusFail})
	})

	c := New(testSecret, 5*time.Second)
	assert.False(t, c.Kill(context.Background(), addr, "abc123ef", "alice"))
}

func TestListReturnsJobsOnSuccess(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		wire.ReadKind(conn)
		wire.ReadFrame(conn)
		conn.Write([]byte{wire.StatusOK})
		resp := job.ListResponse{Jobs: []job.JobSummary{{JobID: "abc123ef", Sender: "alice", Filename: "main.py"}}}
		data, err := json.Marshal(resp)
		require.NoError(t, err)
		wire.WriteFrame(conn, data)
	})

	c := New(testSecret, 5*time.Second)
	jobs, ok := c.List(context.Background(), addr)
	require.True(t, ok)
	require.Len(t, jobs, 1)
	assert.Equal(t, "abc123ef", jobs[0].JobID)
}

func TestListReturnsFalseOnFailureStatus(t *testing.T) {
	addr := startFakePeer(t, func(conn net.Conn) {
		wire.ReadKind(conn)
		wire.ReadFrame(conn)
		conn.Write([]byte{wire.StatusFail})
	})

	c := New(testSecret, 5*time.Second)
	_, ok := c.List(context.Background(), addr)
	assert.False(t, ok)
}
