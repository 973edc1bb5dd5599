// Package runner executes delegated tools (the optimization transformer,
// ansible-playbook, ansible-galaxy) and reports their outcome.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// Command describes one process invocation.
type Command struct {
	// Name is the executable; resolved through PATH when it has no separator.
	Name string
	Args []string

	// Dir is the working directory; empty means the caller's.
	Dir string

	// Env is appended to the inherited environment.
	Env []string

	// Stdout and Stderr, when set, receive live output in addition to the
	// captured buffers.
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result contains the results of a finished process.
type Result struct {
	Stdout []byte
	Stderr []byte

	// ExitCode is 0 on success; 127 when the executable could not be started.
	ExitCode int
}

// Succeeded reports a zero exit code.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Runner abstracts process execution so transformers and playbook
// delegation can be tested without spawning processes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct {
	Logger *zap.Logger
}

func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{Logger: logger}
}

// Run starts the command in its own process group and waits for it.
//
// A non-zero exit is reported through Result.ExitCode with a nil error; the
// error is reserved for processes that could not be started or were
// cancelled. On cancellation the whole process group is killed.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Result{ExitCode: 127}, errors.New("command name is empty")
	}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, c.Stdout)
	cmd.Stderr = tee(&stderr, c.Stderr)

	r.Logger.Debug("starting process", zap.String("command", c.String()), zap.String("dir", c.Dir))
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: 127, Stderr: stderr.Bytes()}, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return Result{ExitCode: -1, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, fmt.Errorf("%s cancelled: %w", c.Name, ctx.Err())
	case err = <-done:
	}

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.ExitCode = 1
			return res, fmt.Errorf("failed to execute %s: %w", c.Name, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	r.Logger.Debug("process finished", zap.String("command", c.Name), zap.Int("exit_code", res.ExitCode))
	return res, nil
}

func tee(buf *bytes.Buffer, live io.Writer) io.Writer {
	if live == nil {
		return buf
	}
	return io.MultiWriter(buf, live)
}
