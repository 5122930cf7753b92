// Package judge talks to code execution sandboxes. Every backend reports outcomes using the
// Judge0 status vocabulary so the grading pipeline does not care which one is configured.
package judge

import (
	"context"
	"errors"
	"strings"
)

// ErrExecution reports that the sandbox could not produce a terminal verdict.
var ErrExecution = errors.New("judge execution error")

// Status is a Judge0 submission status id.
type Status int

const (
	StatusInQueue           Status = 1
	StatusProcessing        Status = 2
	StatusAccepted          Status = 3
	StatusWrongAnswer       Status = 4
	StatusTimeLimitExceeded Status = 5
	StatusCompilationError  Status = 6
	StatusRuntimeSIGSEGV    Status = 7
	StatusRuntimeSIGXFSZ    Status = 8
	StatusRuntimeSIGFPE     Status = 9
	StatusRuntimeSIGABRT    Status = 10
	StatusRuntimeNZEC       Status = 11
	StatusRuntimeOther      Status = 12
	StatusInternalError     Status = 13
	StatusExecFormatError   Status = 14
)

// Terminal reports whether the sandbox has finished with the job.
func (s Status) Terminal() bool {
	return s > StatusProcessing
}

// RuntimeError reports whether the status is one of the runtime error variants.
func (s Status) RuntimeError() bool {
	return s >= StatusRuntimeSIGSEGV && s <= StatusRuntimeOther
}

// SandboxFailure reports statuses that describe a sandbox fault rather than the program.
func (s Status) SandboxFailure() bool {
	return s == StatusInternalError || s == StatusExecFormatError
}

// Request is one (source, language, stdin, expected stdout) unit of work.
type Request struct {
	Source         string
	Language       Language
	Stdin          string
	ExpectedOutput string
	SkipComparison bool
	CPUTimeLimit   float64
	MemoryLimitKB  int
}

// Result is the terminal report for a Request.
type Result struct {
	Token         string
	Status        Status
	Description   string
	Stdout        string
	Stderr        string
	CompileOutput string
	TimeSeconds   float64
	MemoryKB      int64
}

// Client submits a unit of work and blocks until a terminal status or a bounded wait elapses.
type Client interface {
	Submit(ctx context.Context, req Request) (Result, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Result, error)

// Submit calls f(ctx, req).
func (f ClientFunc) Submit(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// OutputMatches compares program output with the expected output ignoring trailing whitespace
// on every line and trailing blank lines.
func OutputMatches(actual, expected string) bool {
	return normalizeOutput(actual) == normalizeOutput(expected)
}

func normalizeOutput(value string) string {
	lines := strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
