// Package runner is the single seam through which external processes are
// started. Every adapter and the consumer step go through a Runner.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Command describes one process invocation as an argument vector and an
// environment map. Nothing is interpreted by a shell.
type Command struct {
	Args []string
	// Env overrides entries of the inherited environment.
	Env map[string]string
	Dir string

	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command for logs. It is not meant to be re-parsed.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Runner runs a command and waits for it to exit.
//
// A process that ran and exited non-zero is reported as (code, nil). A
// process that could not be started is reported as (-1, err).
type Runner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, err error)
}

// Exec runs commands on the host.
//
// Cancelling ctx does not interrupt a running process: native toolchains
// leave half written objects behind when killed. Callers stop scheduling
// new commands instead.
type Exec struct{}

var _ Runner = Exec{}

func (Exec) Run(ctx context.Context, c Command) (int, error) {
	if len(c.Args) == 0 {
		return -1, errors.New("runner: empty command")
	}
	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if len(c.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), c.Env)
	}
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("start %s: %w", c.Args[0], err)
}

// MergeEnv applies override on top of base and returns a sorted KEY=VALUE list.
func MergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// JoinPath prepends paths to the value of key in the current process
// environment, using the list separator of the host.
func JoinPath(key string, paths []string) string {
	value := strings.Join(paths, string(os.PathListSeparator))
	if cur := os.Getenv(key); cur != "" {
		if value == "" {
			return cur
		}
		return value + string(os.PathListSeparator) + cur
	}
	return value
}
