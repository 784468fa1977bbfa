package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/homie/pkg/types"
)

// MaxHistoryEntries is the cap enforced on every rewrite.
const MaxHistoryEntries = 1000

// HistoryEntry is one record in job_history.jsonl. The identity fields
// are written once by AppendStart; the completion fields are nil until
// PatchCompletion fills them in.
type HistoryEntry struct {
	JobID      string   `json:"job_id"`
	Sender     string   `json:"sender"`
	Peer       string   `json:"peer"`
	Filename   string   `json:"filename"`
	Args       []string `json:"args"`
	Image      string   `json:"image"`
	RequireGPU bool     `json:"require_gpu"`
	Role       types.Role `json:"role"`
	StartTime  time.Time  `json:"start_time"`

	EndTime         *time.Time `json:"end_time,omitempty"`
	RuntimeSeconds  *float64   `json:"runtime_seconds,omitempty"`
	ExitCode        *int       `json:"exit_code,omitempty"`
	Success         *bool      `json:"success,omitempty"`
	Error           *string    `json:"error,omitempty"`
	OutputFileCount *int       `json:"output_file_count,omitempty"`
}

// Completed reports whether e has been patched with its outcome.
func (e HistoryEntry) Completed() bool {
	return e.EndTime != nil
}

// QueryFilter narrows a Query call. Zero values impose no constraint.
type QueryFilter struct {
	Role    *types.Role
	Peer    string
	Success *bool
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// Stats is a rollup over completed entries only.
type Stats struct {
	Total              int
	Succeeded          int
	Failed             int
	SuccessRate        float64
	MeanRuntimeSeconds float64
}

// Log is the mutex-serialized append-then-patch job history file.
type Log struct {
	path string
	mu   sync.Mutex
}

// Open returns a Log backed by path, creating its parent directory if
// necessary. The file itself is created lazily on first append.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Log{path: path}, nil
}

// AppendStart writes one record with its completion fields null.
func (l *Log) AppendStart(e HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// PatchCompletion rewrites the file, replacing the open entry matching
// (jobID, role) with its completed form, and truncates to the newest
// MaxHistoryEntries records.
func (l *Log) PatchCompletion(jobID string, role types.Role, endTime time.Time, runtimeSeconds float64, exitCode int, success bool, errMsg *string, outputFileCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readAllLocked()
	if err != nil {
		return err
	}

	found := false
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].JobID == jobID && entries[i].Role == role {
			entries[i].EndTime = &endTime
			entries[i].RuntimeSeconds = &runtimeSeconds
			entries[i].ExitCode = &exitCode
			entries[i].Success = &success
			entries[i].Error = errMsg
			entries[i].OutputFileCount = &outputFileCount
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("history: no open entry for job %s role %s", jobID, role)
	}

	if len(entries) > MaxHistoryEntries {
		entries = entries[len(entries)-MaxHistoryEntries:]
	}
	return l.rewriteLocked(entries)
}

// Query returns entries matching filter, newest-first, up to
// filter.Limit (0 means unlimited).
func (l *Log) Query(filter QueryFilter) ([]HistoryEntry, error) {
	l.mu.Lock()
	entries, err := l.readAllLocked()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []HistoryEntry
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if filter.Role != nil && e.Role != *filter.Role {
			continue
		}
		if filter.Peer != "" && e.Peer != filter.Peer {
			continue
		}
		if filter.Success != nil {
			if e.Success == nil || *e.Success != *filter.Success {
				continue
			}
		}
		if filter.Since != nil && e.StartTime.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && e.StartTime.After(*filter.Until) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Stats rolls up totals, success rate, and mean runtime over completed
// records only.
func (l *Log) Stats() (Stats, error) {
	l.mu.Lock()
	entries, err := l.readAllLocked()
	l.mu.Unlock()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	var runtimeSum float64
	for _, e := range entries {
		if !e.Completed() {
			continue
		}
		stats.Total++
		runtimeSum += *e.RuntimeSeconds
		if e.Success != nil && *e.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
		stats.MeanRuntimeSeconds = runtimeSum / float64(stats.Total)
	}
	return stats, nil
}

// Count reports the number of entries currently retained, satisfying
// pkg/metrics.HistorySource.
func (l *Log) Count() int {
	l.mu.Lock()
	entries, err := l.readAllLocked()
	l.mu.Unlock()
	if err != nil {
		return 0
	}
	return len(entries)
}

func (l *Log) readAllLocked() ([]HistoryEntry, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e HistoryEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // malformed lines are skipped silently
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *Log) rewriteLocked(entries []HistoryEntry) error {
	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create history rewrite file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return fmt.Errorf("encode history entry: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("write history entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush history rewrite: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close history rewrite file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}
