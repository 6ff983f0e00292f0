package source

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/errors"
)

const (
	DefaultSMIPath      = "nvidia-smi"
	DefaultSettingsPath = "nvidia-settings"
	DefaultTimeout      = 5 * time.Second

	maxStderr = 256
	waitDelay = 500 * time.Millisecond
)

// Command is a Source backed by an external executable.
type Command struct {
	name    string
	path    string
	args    ArgsFunc
	timeout time.Duration
}

// NewCommand creates a command source. A zero timeout disables the
// per-invocation deadline.
func NewCommand(name, path string, args ArgsFunc, timeout time.Duration) *Command {
	return &Command{
		name:    name,
		path:    path,
		args:    args,
		timeout: timeout,
	}
}

// NewSMI returns the nvidia-smi source. All queries are requested in a
// single CSV invocation with a header row.
func NewSMI(path string, timeout time.Duration) *Command {
	if path == "" {
		path = DefaultSMIPath
	}
	return NewCommand("nvidia-smi", path, SMIArgs, timeout)
}

// NewSettings returns the nvidia-settings source.
func NewSettings(path string, timeout time.Duration) *Command {
	if path == "" {
		path = DefaultSettingsPath
	}
	return NewCommand("nvidia-settings", path, SettingsArgs, timeout)
}

// SMIArgs builds "--query-gpu=a,b --format=csv".
func SMIArgs(queries []string) []string {
	return []string{
		"--query-gpu=" + strings.Join(dedupe(queries), ","),
		"--format=csv",
	}
}

// SettingsArgs builds "-q a -q b".
func SettingsArgs(queries []string) []string {
	queries = dedupe(queries)
	args := make([]string, 0, 2*len(queries))
	for _, q := range queries {
		args = append(args, "-q", q)
	}

	return args
}

func (c *Command) Name() string {
	return c.name
}

func (c *Command) Invoke(ctx context.Context, queries []string) (string, error) {
	errFactory := errors.New()
	failure := Failure{Source: c.name, Path: c.path}

	path, err := exec.LookPath(c.path)
	if err != nil {
		return "", errFactory.Wrap(ErrSourceUnavailable, err).WithData(failure)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var args []string
	if c.args != nil {
		args = c.args(queries)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errFactory.Wrap(ErrSourceNonZeroExit, ctxErr).WithData(failure)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			failure.ExitCode = exitErr.ExitCode()
			failure.Stderr = truncate(strings.TrimSpace(stderr.String()), maxStderr)
			return "", errFactory.Wrap(ErrSourceNonZeroExit, err).WithData(failure)
		}

		return "", errFactory.Wrap(ErrSourceUnavailable, err).WithData(failure)
	}

	if strings.TrimSpace(string(out)) == "" {
		return "", errFactory.New(ErrSourceEmptyOutput).WithData(failure)
	}

	return string(out), nil
}

func dedupe(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}

	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
