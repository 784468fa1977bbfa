package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/homie/pkg/job"
	"github.com/cuemby/homie/pkg/sandbox"
	"github.com/cuemby/homie/pkg/wire"
)

var testSecret = []byte("0123456789abcdef")

type fakeExecutor struct {
	result     *job.JobResult
	chunks     [][]byte
	killResult bool
	killJobID  string
	killBy     string
	jobs       []sandbox.ListedJob
}

func (f *fakeExecutor) Run(ctx context.Context, j *job.Job, onOutput func([]byte)) *job.JobResult {
	for _, c := range f.chunks {
		onOutput(c)
	}
	return f.result
}

func (f *fakeExecutor) Kill(jobID, requester string) bool {
	f.killJobID, f.killBy = jobID, requester
	return f.killResult
}

func (f *fakeExecutor) List() []sandbox.ListedJob { return f.jobs }

func newTestJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New("alice", "main.py", []byte("print(1)"), nil, nil, false, "python:3.11-slim")
	require.NoError(t, err)
	return j
}

func TestHandleJobStreamsOutputThenResult(t *testing.T) {
	exec := &fakeExecutor{
		chunks: [][]byte{[]byte("hello\n")},
		result: &job.JobResult{JobID: "x", ExitCode: 0, Stdout: []byte("hello\n")},
	}
	s := New("", testSecret, exec, nil)

	client, srv := net.Pipe()
	go s.handleConn(context.Background(), srv)
	defer client.Close()

	j := newTestJob(t)
	body, err := job.Serialize(j, testSecret)
	require.NoError(t, err)
	require.NoError(t, wire.WriteKindFrame(client, wire.KindJob, body))

	kind, err := wire.ReadKind(client)
	require.NoError(t, err)
	require.Equal(t, wire.KindStdout, kind)
	chunk, err := wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(chunk))

	kind, err = wire.ReadKind(client)
	require.NoError(t, err)
	require.Equal(t, wire.KindResult, kind)
	resultBody, err := wire.ReadFrame(client)
	require.NoError(t, err)
	result, err := job.DeserializeResult(resultBody)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestHandleJobBadAuthReturnsErrorResult(t *testing.T) {
	exec := &fakeExecutor{}
	s := New("", testSecret, exec, nil)

	client, srv := net.Pipe()
	go s.handleConn(context.Background(), srv)
	defer client.Close()

	j := newTestJob(t)
	body, err := job.Serialize(j, []byte("wrong-secret-wrong"))
	require.NoError(t, err)
	require.NoError(t, wire.WriteKindFrame(client, wire.KindJob, body))

	kind, err := wire.ReadKind(client)
	require.NoError(t, err)
	require.Equal(t, wire.KindResult, kind)
	resultBody, err := wire.ReadFrame(client)
	require.NoError(t, err)
	result, err := job.DeserializeResult(resultBody)
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, -1, result.ExitCode)
}

func TestHandleKillSucceedsWithValidAuth(t *testing.T) {
	exec := &fakeExecutor{killResult: true}
	s := New("", testSecret, exec, nil)

	client, srv := net.Pipe()
	go s.handleConn(context.Background(), srv)
	defer client.Close()

	req := job.NewKillRequest(testSecret, "abc123ef", "alice")
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, wire.WriteKindFrame(client, wire.KindKill, body))

	status := make([]byte, 1)
	_, err = client.Read(status)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, status[0])
	assert.Equal(t, "abc123ef", exec.killJobID)
	assert.Equal(t, "alice", exec.killBy)
}

func TestHandleKillFailsWithBadAuth(t *testing.T) {
	exec := &fakeExecutor{killResult: true}
	s := New("", testSecret, exec, nil)

	client, srv := net.Pipe()
	go s.handleConn(context.Background(), srv)
	defer client.Close()

	req := job.NewKillRequest([]byte("a-different-secret-x"), "abc123ef", "alice")
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, wire.WriteKindFrame(client, wire.KindKill, body))

	status := make([]byte, 1)
	_, err = client.Read(status)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusFail, status[0])
}

func TestHandleListReturnsRunningJobs(t *testing.T) {
	start := time.Now()
	exec := &fakeExecutor{jobs: []sandbox.ListedJob{
		{JobID: "abc123ef", Sender: "alice", Filename: "main.py", StartTime: start},
	}}
	s := New("", testSecret, exec, nil)

	client, srv := net.Pipe()
	go s.handleConn(context.Background(), srv)
	defer client.Close()

	req := job.NewListRequest(testSecret)
	body, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, wire.WriteKindFrame(client, wire.KindList, body))

	status := make([]byte, 1)
	_, err = client.Read(status)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, status[0])

	respBody, err := wire.ReadFrame(client)
	require.NoError(t, err)
	var resp job.ListResponse
	require.NoError(t, json.Unmarshal(respBody, &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "abc123ef", resp.Jobs[0].JobID)
}
