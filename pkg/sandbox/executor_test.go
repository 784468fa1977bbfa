package sandbox

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/homie/pkg/config"
	"github.com/cuemby/homie/pkg/job"
	"github.com/cuemby/homie/pkg/types"
)

// fakeDriver stands in for *runtime.ContainerdRuntime: StartContainer
// opens a pipe and either writes output and closes it immediately, or
// (holdOpen) leaves it open until StopContainer is called, simulating a
// long-running container for timeout/kill tests.
type fakeDriver struct {
	mu       sync.Mutex
	pr       *io.PipeReader
	pw       *io.PipeWriter
	output   []byte
	exitCode uint32
	holdOpen bool
	stopped  bool
}

func (f *fakeDriver) Ready(ctx context.Context) error { return nil }

func (f *fakeDriver) EnsureImage(ctx context.Context, imageRef string) error { return nil }

func (f *fakeDriver) CreateContainer(ctx context.Context, c *types.Container) (string, error) {
	return c.ID, nil
}

func (f *fakeDriver) StartContainer(ctx context.Context, containerID string) error {
	pr, pw := io.Pipe()
	f.mu.Lock()
	f.pr, f.pw = pr, pw
	f.mu.Unlock()

	if f.holdOpen {
		return nil
	}
	go func() {
		pw.Write(f.output)
		pw.Close()
	}()
	return nil
}

func (f *fakeDriver) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pr, nil
}

func (f *fakeDriver) IsRunning(ctx context.Context, containerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdOpen && !f.stopped
}

func (f *fakeDriver) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.pw != nil {
		f.pw.Write(f.output)
		f.pw.Close()
	}
	return nil
}

func (f *fakeDriver) DeleteContainer(ctx context.Context, containerID string) error { return nil }

func (f *fakeDriver) ExitCode(ctx context.Context, containerID string) (uint32, error) {
	return f.exitCode, nil
}

func testCaps(timeoutSecs int) config.ContainerCaps {
	return config.ContainerCaps{
		CPUCores:    1,
		MemoryBytes: 64 * 1024 * 1024,
		PIDs:        32,
		TimeoutSecs: timeoutSecs,
		NetworkMode: "none",
		UID:         1000,
		GID:         1000,
	}
}

func newJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New("alice", "main.py", []byte("print(1)"), nil, nil, false, "python:3.11-slim")
	require.NoError(t, err)
	return j
}

func TestRunReturnsExitCodeAndStdoutOnSuccess(t *testing.T) {
	driver := &fakeDriver{output: []byte("hello\n"), exitCode: 0}
	e := NewExecutor(testCaps(5), driver, t.TempDir())

	var streamed []byte
	result := e.Run(context.Background(), newJob(t), func(b []byte) {
		streamed = append(streamed, b...)
	})

	require.Nil(t, result.Error)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", string(result.Stdout))
	assert.Equal(t, "hello\n", string(streamed))
	assert.Zero(t, e.RunningCount())
}

func TestRunNonZeroExit(t *testing.T) {
	driver := &fakeDriver{output: []byte("boom"), exitCode: 1}
	e := NewExecutor(testCaps(5), driver, t.TempDir())

	result := e.Run(context.Background(), newJob(t), nil)

	assert.Equal(t, 1, result.ExitCode)
	assert.Nil(t, result.Error)
}

func TestRunTimesOutWhenContainerNeverExits(t *testing.T) {
	driver := &fakeDriver{holdOpen: true}
	e := NewExecutor(testCaps(1), driver, t.TempDir())

	start := time.Now()
	result := e.Run(context.Background(), newJob(t), nil)
	elapsed := time.Since(start)

	require.NotNil(t, result.Error)
	assert.Equal(t, -1, result.ExitCode)
	assert.Equal(t, "Execution timed out", *result.Error)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestKillStopsRunningJobAndReportsError(t *testing.T) {
	driver := &fakeDriver{holdOpen: true}
	e := NewExecutor(testCaps(30), driver, t.TempDir())
	j := newJob(t)

	resultCh := make(chan *job.JobResult, 1)
	go func() {
		resultCh <- e.Run(context.Background(), j, nil)
	}()

	require.Eventually(t, func() bool { return e.RunningCount() == 1 }, time.Second, 10*time.Millisecond)

	require.True(t, e.Kill(j.ID, j.Sender))
	assert.False(t, e.Kill(j.ID, j.Sender), "job already marked killed")

	select {
	case result := <-resultCh:
		require.NotNil(t, result.Error)
		assert.Equal(t, -1, result.ExitCode)
		assert.Contains(t, *result.Error, "killed")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Kill")
	}
}

func TestKillRejectsWrongRequester(t *testing.T) {
	driver := &fakeDriver{holdOpen: true}
	e := NewExecutor(testCaps(30), driver, t.TempDir())
	j := newJob(t)

	go e.Run(context.Background(), j, nil)
	require.Eventually(t, func() bool { return e.RunningCount() == 1 }, time.Second, 10*time.Millisecond)

	assert.False(t, e.Kill(j.ID, "mallory"))
	e.Kill(j.ID, j.Sender) // clean up the still-running job
}

func TestKillUnknownJobReturnsFalse(t *testing.T) {
	e := NewExecutor(testCaps(5), &fakeDriver{}, t.TempDir())
	assert.False(t, e.Kill("nope", "alice"))
}

func TestListReportsRunningJob(t *testing.T) {
	driver := &fakeDriver{holdOpen: true}
	e := NewExecutor(testCaps(30), driver, t.TempDir())
	j := newJob(t)

	go e.Run(context.Background(), j, nil)
	require.Eventually(t, func() bool { return len(e.List()) == 1 }, time.Second, 10*time.Millisecond)

	listed := e.List()
	assert.Equal(t, j.ID, listed[0].JobID)
	assert.Equal(t, j.Sender, listed[0].Sender)

	e.Kill(j.ID, j.Sender)
}
