// Package scenario drives the CLI end to end: generate accounts, point a
// config at an endpoint, check balances and verify what comes back.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/luxfi/erc20-processor/pkg/keys"
)

// Result is the outcome of one CLI invocation
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Invoker runs the CLI with args
type Invoker interface {
	Run(ctx context.Context, args ...string) (*Result, error)
}

// MainFunc is an in-process CLI entry point returning the exit code
type MainFunc func(ctx context.Context, args []string, stdout, stderr io.Writer) int

// InProcess runs the CLI inside the current process
type InProcess struct {
	Main MainFunc
}

func (p InProcess) Run(ctx context.Context, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	code := p.Main(ctx, args, &stdout, &stderr)
	return &Result{ExitCode: code, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// Exec runs an external erc20_processor binary
type Exec struct {
	Binary string
	Dir    string
}

func (e Exec) Run(ctx context.Context, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Dir = e.Dir
	cmd.Env = scrubEnv(os.Environ())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, err
	}
	return res, nil
}

// scrubEnv drops variables that would override the scenario's env file
func scrubEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, keys.EnvPrivateKeys+"=") || strings.HasPrefix(kv, "ERC20_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
