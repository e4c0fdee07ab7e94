// Package exec provides shell command execution helpers.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Ex executes the named command in the given directory and
// returns combined stdout+stderr output. Pass empty dir to
// use the current working directory.
func Ex(
	ctx context.Context,
	dir string,
	name string,
	arg ...string,
) (string, error) {
	const errCtx = "executing command"

	slog.Debug(
		"executing",
		"cmd", name,
		"args", strings.Join(arg, " "),
	)

	cmd := exec.CommandContext(ctx, name, arg...)
	if dir != "" {
		cmd.Dir = dir
	}

	by, err := cmd.CombinedOutput()

	slog.Debug("output", "result", string(by))

	if err != nil {
		return string(by), fmt.Errorf(
			"%s: %s %s: %w: %s",
			errCtx, name, strings.Join(arg, " "),
			err, strings.TrimSpace(string(by)),
		)
	}

	return string(by), nil
}

// ExInput executes the named command with input on
// stdin and returns stdout only. Stderr is included in
// the error on failure.
func ExInput(
	ctx context.Context,
	input []byte,
	name string,
	arg ...string,
) ([]byte, error) {
	const errCtx = "executing command"

	slog.Debug(
		"executing with input",
		"cmd", name,
		"args", strings.Join(arg, " "),
		"input_bytes", len(input),
	)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf(
			"%s: %s %s: %w: %s",
			errCtx, name, strings.Join(arg, " "),
			err, strings.TrimSpace(stderr.String()),
		)
	}

	return stdout.Bytes(), nil
}
