// Package jobs runs indexing work in short-lived child processes. Each job
// re-executes the current binary with the job subcommand so a crash inside
// extraction or embedding never takes the server down.
package jobs

import (
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Job kinds understood by the job subcommand.
const (
	KindIndex  = "index"
	KindDelete = "delete"
	KindFile   = "file"
)

// Job is a spawned background job.
type Job struct {
	Kind  string
	DocID string
	PID   int

	done chan struct{}
	err  error
}

// Wait blocks until the job's process exits and returns its exit error, if
// any. Start* callers that fire and forget never call it.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Runner spawns job processes.
type Runner struct {
	execPath   string
	configPath string
	logger     *zap.Logger
}

// NewRunner returns a Runner that re-executes the current binary. configPath
// may be empty when the child should use config defaults.
func NewRunner(configPath string, logger *zap.Logger) (*Runner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &Runner{execPath: exe, configPath: configPath, logger: logger}, nil
}

// NewRunnerWithExecutable returns a Runner spawning the given binary instead
// of the current one.
func NewRunnerWithExecutable(execPath, configPath string, logger *zap.Logger) *Runner {
	return &Runner{execPath: execPath, configPath: configPath, logger: logger}
}

// StartIndexJob spawns a child process that chunks, embeds, and stores the
// document's vectors.
func (r *Runner) StartIndexJob(docID string) (*Job, error) {
	return r.start(KindIndex, docID)
}

// StartDeleteJob spawns a child process that removes the document's vectors.
// The vector ids are passed on the command line because the caller may remove
// the document row before the child gets a chance to read it.
func (r *Runner) StartDeleteJob(docID string, vectorIDs []string) (*Job, error) {
	return r.start(KindDelete, docID, vectorIDs...)
}

// StartFileJob spawns a child process that fetches and extracts source, then
// indexes the document.
func (r *Runner) StartFileJob(docID, source string) (*Job, error) {
	return r.start(KindFile, docID, source)
}

func (r *Runner) start(kind, docID string, extra ...string) (*Job, error) {
	args := []string{"job"}
	if r.configPath != "" {
		args = append(args, "-config", r.configPath)
	}
	args = append(args, kind, docID)
	args = append(args, extra...)

	cmd := exec.Command(r.execPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s job for %s: %w", kind, docID, err)
	}

	job := &Job{
		Kind:  kind,
		DocID: docID,
		PID:   cmd.Process.Pid,
		done:  make(chan struct{}),
	}
	r.logger.Info("job started",
		zap.String("kind", kind),
		zap.String("doc_id", docID),
		zap.Int("pid", job.PID))

	go r.reap(cmd, job)
	return job, nil
}

// reap waits on the child so it never lingers as a zombie, and records the
// outcome on the job.
func (r *Runner) reap(cmd *exec.Cmd, job *Job) {
	err := cmd.Wait()
	job.err = err
	close(job.done)
	if err != nil {
		r.logger.Warn("job failed",
			zap.String("kind", job.Kind),
			zap.String("doc_id", job.DocID),
			zap.Int("pid", job.PID),
			zap.Error(err))
		return
	}
	r.logger.Info("job finished",
		zap.String("kind", job.Kind),
		zap.String("doc_id", job.DocID),
		zap.Int("pid", job.PID))
}
