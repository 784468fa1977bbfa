package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/homie/pkg/history"
	"github.com/cuemby/homie/pkg/job"
	"github.com/cuemby/homie/pkg/log"
	"github.com/cuemby/homie/pkg/metrics"
	"github.com/cuemby/homie/pkg/sandbox"
	"github.com/cuemby/homie/pkg/types"
	"github.com/cuemby/homie/pkg/wire"
)

// Executor is the subset of *sandbox.Executor the server dispatches
// work to.
type Executor interface {
	Run(ctx context.Context, j *job.Job, onOutput func([]byte)) *job.JobResult
	Kill(jobID, requester string) bool
	List() []sandbox.ListedJob
}

// Server accepts job/kill/list requests on worker_port and dispatches
// them to an Executor, recording start/completion in a history log.
type Server struct {
	addr     string
	secret   []byte
	executor Executor
	history  *history.Log
	logger   zerolog.Logger
}

// New creates a worker server listening on addr.
func New(addr string, secret []byte, executor Executor, historyLog *history.Log) *Server {
	return &Server{
		addr:     addr,
		secret:   secret,
		executor: executor,
		history:  historyLog,
		logger:   log.WithComponent("server"),
	}
}

// ListenAndServe runs the accept loop until ctx is canceled. Each
// connection is handled in its own goroutine and the loop re-checks its
// accept deadline every second so a canceled ctx is noticed promptly
// even with no inbound traffic.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info().Str("addr", s.addr).Msg("worker server listening")

	for {
		if tl, ok := ln.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(time.Second))
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Trace().Err(err).Msg("accept failed")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	kind, err := wire.ReadKind(conn)
	if err != nil {
		s.logger.Trace().Err(err).Msg("failed to read message kind")
		return
	}

	switch kind {
	case wire.KindJob:
		s.handleJob(ctx, conn)
	case wire.KindKill:
		s.handleKill(conn)
	case wire.KindList:
		s.handleList(conn)
	default:
		s.logger.Trace().Uint8("kind", kind).Msg("unknown message kind")
	}
}

func (s *Server) handleJob(ctx context.Context, conn net.Conn) {
	body, err := wire.ReadFrame(conn)
	if err != nil {
		s.logger.Trace().Err(err).Msg("failed to read job frame")
		writeResultFrame(conn, job.ErrorResult("", err.Error()))
		return
	}

	j, err := job.Deserialize(body, s.secret)
	if err != nil {
		s.logger.Warn().Err(err).Msg("job auth failed")
		writeResultFrame(conn, job.ErrorResult("", err.Error()))
		return
	}

	metrics.JobsAcceptedTotal.Inc()

	start := time.Now()
	if s.history != nil {
		entry := history.HistoryEntry{
			JobID:      j.ID,
			Sender:     j.Sender,
			Peer:       j.Sender,
			Filename:   j.Filename,
			Args:       j.Args,
			Image:      j.Image,
			RequireGPU: j.RequireGPU,
			Role:       types.RoleExecutor,
			StartTime:  start,
		}
		if err := s.history.AppendStart(entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to append history start entry")
		}
	}

	onOutput := func(chunk []byte) {
		if err := wire.WriteKindFrame(conn, wire.KindStdout, chunk); err != nil {
			s.logger.Trace().Err(err).Msg("failed to write output frame")
		}
	}

	result := s.executor.Run(ctx, j, onOutput)

	success := result.Error == nil && result.ExitCode == 0
	switch {
	case result.Error != nil && result.ExitCode == -1 && strings.Contains(*result.Error, "killed by"):
		metrics.JobsKilledTotal.Inc()
	case success:
		metrics.JobsSucceededTotal.Inc()
	default:
		metrics.JobsFailedTotal.Inc()
	}
	metrics.JobDuration.Observe(result.RuntimeSeconds)

	if s.history != nil {
		if err := s.history.PatchCompletion(j.ID, types.RoleExecutor, time.Now(), result.RuntimeSeconds, result.ExitCode, success, result.Error, len(result.OutputFiles)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to patch history completion entry")
		}
	}

	writeResultFrame(conn, result)
}

func writeResultFrame(conn net.Conn, result *job.JobResult) {
	data, err := job.SerializeResult(result)
	if err != nil {
		return
	}
	_ = wire.WriteKindFrame(conn, wire.KindResult, data)
}

func (s *Server) handleKill(conn net.Conn) {
	body, err := wire.ReadFrame(conn)
	if err != nil {
		s.logger.Trace().Err(err).Msg("failed to read kill frame")
		return
	}

	var req job.KillRequest
	if err := json.Unmarshal(body, &req); err != nil || !req.Verify(s.secret) {
		_, _ = conn.Write([]byte{wire.StatusFail})
		return
	}

	status := byte(wire.StatusFail)
	if s.executor.Kill(req.JobID, req.Requester) {
		status = wire.StatusOK
	}
	_, _ = conn.Write([]byte{status})
}

func (s *Server) handleList(conn net.Conn) {
	body, err := wire.ReadFrame(conn)
	if err != nil {
		s.logger.Trace().Err(err).Msg("failed to read list frame")
		return
	}

	var req job.ListRequest
	if err := json.Unmarshal(body, &req); err != nil || !req.Verify(s.secret) {
		_, _ = conn.Write([]byte{wire.StatusFail})
		return
	}

	jobs := s.executor.List()
	summaries := make([]job.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, job.JobSummary{
			JobID:     j.JobID,
			Sender:    j.Sender,
			Filename:  j.Filename,
			StartTime: j.StartTime,
		})
	}

	data, err := json.Marshal(job.ListResponse{Jobs: summaries})
	if err != nil {
		_, _ = conn.Write([]byte{wire.StatusFail})
		return
	}

	if _, err := conn.Write([]byte{wire.StatusOK}); err != nil {
		return
	}
	_ = wire.WriteFrame(conn, data)
}
