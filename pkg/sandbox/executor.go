package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/homie/pkg/config"
	"github.com/cuemby/homie/pkg/job"
	"github.com/cuemby/homie/pkg/log"
	"github.com/cuemby/homie/pkg/types"
)

// Driver is the subset of *runtime.ContainerdRuntime the executor needs,
// kept narrow so tests can swap in a fake without a containerd daemon.
type Driver interface {
	Ready(ctx context.Context) error
	EnsureImage(ctx context.Context, imageRef string) error
	CreateContainer(ctx context.Context, c *types.Container) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
	IsRunning(ctx context.Context, containerID string) bool
	StopContainer(ctx context.Context, containerID string, timeout time.Duration) error
	DeleteContainer(ctx context.Context, containerID string) error
	ExitCode(ctx context.Context, containerID string) (uint32, error)
}

// ListedJob is one row of Executor.List, the shape the worker's 'L'
// response carries over the wire.
type ListedJob struct {
	JobID     string    `json:"job_id"`
	Sender    string    `json:"sender"`
	Filename  string    `json:"filename"`
	StartTime time.Time `json:"start_time"`
}

type runningJob struct {
	job       *job.Job
	container string
	startTime time.Time
	cancel    context.CancelFunc

	mu       sync.Mutex
	state    types.JobState
	killedBy string
}

func (rj *runningJob) setState(s types.JobState) {
	rj.mu.Lock()
	rj.state = s
	rj.mu.Unlock()
}

func (rj *runningJob) snapshot() (types.JobState, string) {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	return rj.state, rj.killedBy
}

// Executor runs one job at a time per call to Run, tracking every job
// currently in flight so the worker can List or Kill it by id.
type Executor struct {
	cfg     config.ContainerCaps
	driver  Driver
	workDir string
	logger  zerolog.Logger

	mu      sync.RWMutex
	running map[string]*runningJob
}

// NewExecutor creates an Executor that materializes job workspaces under
// workDir and drives containers through driver.
func NewExecutor(cfg config.ContainerCaps, driver Driver, workDir string) *Executor {
	return &Executor{
		cfg:     cfg,
		driver:  driver,
		workDir: workDir,
		logger:  log.WithComponent("sandbox"),
		running: make(map[string]*runningJob),
	}
}

// Run executes j to completion and returns its result. It never returns a
// Go error: every failure mode converges on a populated job.JobResult.
// onOutput, if non-nil, is called with each chunk of the container's
// combined stdout+stderr stream as it arrives.
func (e *Executor) Run(ctx context.Context, j *job.Job, onOutput func([]byte)) *job.JobResult {
	start := time.Now()
	logger := log.WithJobID(j.ID)

	workspace := filepath.Join(e.workDir, j.ID)
	defer os.RemoveAll(workspace)

	if err := materializeWorkspace(workspace, j.Filename, j.Code, j.Files); err != nil {
		logger.Error().Err(err).Msg("failed to materialize workspace")
		return job.ErrorResult(j.ID, err.Error())
	}

	if err := e.driver.EnsureImage(ctx, j.Image); err != nil {
		logger.Error().Err(err).Str("image", j.Image).Msg("image unavailable")
		return job.ErrorResult(j.ID, err.Error())
	}

	interpreter := InterpreterFor(j.Filename)
	command := append([]string{interpreter, j.Filename}, j.Args...)

	containerID := "homie-job-" + j.ID
	container := &types.Container{
		ID:                containerID,
		Image:             j.Image,
		Command:           command,
		Env:               append(unbufferedEnv(interpreter), "HOMIE_JOB_ID="+j.ID),
		WorkspaceHostPath: workspace,
		Resources: &types.Resources{
			CPUCores:    e.cfg.CPUCores,
			MemoryBytes: e.cfg.MemoryBytes,
			PIDs:        e.cfg.PIDs,
			TimeoutSecs: e.cfg.TimeoutSecs,
			NetworkMode: e.cfg.NetworkMode,
			UID:         e.cfg.UID,
			GID:         e.cfg.GID,
		},
		ReadOnlyRootfs: true,
		// RequireGPU is trusted as given; nothing checks whether j.Image
		// actually needs a GPU device.
		GPU:       j.RequireGPU,
		CreatedAt: start,
	}

	if _, err := e.driver.CreateContainer(ctx, container); err != nil {
		logger.Error().Err(err).Msg("failed to create container")
		return job.ErrorResult(j.ID, err.Error())
	}
	defer e.driver.DeleteContainer(context.Background(), containerID)

	timeout := time.Duration(e.cfg.TimeoutSecs) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rj := &runningJob{job: j, container: containerID, startTime: start, cancel: cancel, state: types.JobStateNew}
	e.register(j.ID, rj)
	defer e.unregister(j.ID)

	if err := e.driver.StartContainer(runCtx, containerID); err != nil {
		logger.Error().Err(err).Msg("failed to start container")
		return job.ErrorResult(j.ID, err.Error())
	}
	// A Kill that landed between register and here has already marked the
	// job killed; leave that state in place.
	rj.mu.Lock()
	if rj.state == types.JobStateNew {
		rj.state = types.JobStateRunning
	}
	rj.mu.Unlock()

	logs, err := e.driver.GetContainerLogs(runCtx, containerID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to attach to container logs")
		return job.ErrorResult(j.ID, err.Error())
	}

	var stdout bytes.Buffer
	readDone := make(chan struct{})
	go streamOutput(logs, &stdout, onOutput, readDone)

	// The log stream closing is the fast exit signal; the liveness poll
	// backs it up by watching for the container leaving the running
	// state, and the context carries kill and timeout.
	liveness := time.NewTicker(time.Second)
	defer liveness.Stop()

	var timedOut bool
	waiting := true
	for waiting {
		select {
		case <-readDone:
			waiting = false
		case <-liveness.C:
			if !e.driver.IsRunning(context.Background(), containerID) {
				<-readDone
				waiting = false
			}
		case <-runCtx.Done():
			timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
			_ = e.driver.StopContainer(context.Background(), containerID, 5*time.Second)
			<-readDone
			waiting = false
		}
	}

	runtimeSeconds := time.Since(start).Seconds()

	state, killedBy := rj.snapshot()

	inputs := inputSet(j.Filename, j.Files)
	outputFiles, err := collectOutputFiles(workspace, inputs)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to collect output files")
		outputFiles = map[string][]byte{}
	}

	switch {
	case state == types.JobStateKilled:
		msg := fmt.Sprintf("job killed by %s", killedBy)
		logger.Info().Str("killed_by", killedBy).Msg("job killed")
		return &job.JobResult{
			JobID:          j.ID,
			ExitCode:       -1,
			Stdout:         stdout.Bytes(),
			OutputFiles:    outputFiles,
			RuntimeSeconds: runtimeSeconds,
			Error:          &msg,
		}
	case timedOut:
		rj.setState(types.JobStateKilled)
		msg := "Execution timed out"
		logger.Info().Msg("job timed out")
		return &job.JobResult{
			JobID:          j.ID,
			ExitCode:       -1,
			Stdout:         stdout.Bytes(),
			OutputFiles:    outputFiles,
			RuntimeSeconds: runtimeSeconds,
			Error:          &msg,
		}
	}

	exitCode, err := e.driver.ExitCode(context.Background(), containerID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read exit code")
		return job.ErrorResult(j.ID, err.Error())
	}
	rj.setState(types.JobStateCompleted)

	return &job.JobResult{
		JobID:          j.ID,
		ExitCode:       int(exitCode),
		Stdout:         stdout.Bytes(),
		OutputFiles:    outputFiles,
		RuntimeSeconds: runtimeSeconds,
	}
}

// streamOutput copies logs into both buf and onOutput until EOF, then
// closes done. It never returns an error; a read failure is treated the
// same as a clean EOF since the container is already gone by then.
func streamOutput(logs io.ReadCloser, buf *bytes.Buffer, onOutput func([]byte), done chan<- struct{}) {
	defer close(done)
	defer logs.Close()

	chunk := make([]byte, 32*1024)
	for {
		n, err := logs.Read(chunk)
		if n > 0 {
			data := append([]byte(nil), chunk[:n]...)
			buf.Write(data)
			if onOutput != nil {
				onOutput(data)
			}
		}
		if err != nil {
			return
		}
	}
}

// Kill cancels the running job's context if requester is its sender. It
// reports false if the job is unknown, requester is not its sender, or
// the job has already reached a terminal state.
func (e *Executor) Kill(jobID, requester string) bool {
	e.mu.RLock()
	rj, ok := e.running[jobID]
	e.mu.RUnlock()
	if !ok || rj.job.Sender != requester {
		return false
	}

	rj.mu.Lock()
	if rj.state != types.JobStateNew && rj.state != types.JobStateRunning {
		rj.mu.Unlock()
		return false
	}
	rj.state = types.JobStateKilled
	rj.killedBy = requester
	rj.mu.Unlock()
	rj.cancel()
	return true
}

// List returns every job currently in flight.
func (e *Executor) List() []ListedJob {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]ListedJob, 0, len(e.running))
	for id, rj := range e.running {
		out = append(out, ListedJob{
			JobID:     id,
			Sender:    rj.job.Sender,
			Filename:  rj.job.Filename,
			StartTime: rj.startTime,
		})
	}
	return out
}

// RunningCount satisfies pkg/metrics.JobSource.
func (e *Executor) RunningCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.running)
}

// Ready reports whether the underlying container driver is reachable.
// Callers treat a failure as a non-fatal startup warning, not a hard
// requirement.
func (e *Executor) Ready(ctx context.Context) error {
	return e.driver.Ready(ctx)
}

func (e *Executor) register(jobID string, rj *runningJob) {
	e.mu.Lock()
	e.running[jobID] = rj
	e.mu.Unlock()
}

func (e *Executor) unregister(jobID string) {
	e.mu.Lock()
	delete(e.running, jobID)
	e.mu.Unlock()
}
