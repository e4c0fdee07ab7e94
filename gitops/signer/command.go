package signer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/byte4ever/gitops_pr/gitops/exec"
	"github.com/byte4ever/gitops_pr/gitops/git"
	"github.com/byte4ever/gitops_pr/gitops/git/local"
)

// DefaultTimeout bounds a Command run.
const DefaultTimeout = time.Minute

// Command signs commits with an external program. The
// payload is written to its stdin and its stdout is used
// as the signature, e.g. "gpg --detach-sign --armor
// --local-user KEYID".
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// ParseCommand splits a command line on whitespace.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty sign command")
	}

	return &Command{Name: fields[0], Args: fields[1:]}, nil
}

// GenerateSignature runs the command over the commit
// payload.
func (s *Command) GenerateSignature(c git.Commit) (string, error) {
	const errCtx = "command signing commit"

	payload, err := local.CommitPayload(c)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.ExInput(ctx, payload, s.Name, s.Args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	sig := strings.TrimRight(string(out), "\n")
	if sig == "" {
		return "", fmt.Errorf("%s: %s produced no output", errCtx, s.Name)
	}

	return sig + "\n", nil
}
