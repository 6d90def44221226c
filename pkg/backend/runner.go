package backend

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/webauthd/internal/logger"
)

// suTool is the privilege-dropping wrapper used to run issuers as the
// target local account.
const suTool = "su"

// Runner executes one external tool invocation. The secret, if any, arrives
// on stdin; argv never carries it.
type Runner interface {
	Run(ctx context.Context, stdin io.Reader, tool string, args ...string) error
}

// ExecRunner runs tools as real child processes with a bounded lifetime.
type ExecRunner struct {
	// Timeout caps each invocation so a hung tool cannot pin a request
	// forever. Zero falls back to a generous default.
	Timeout time.Duration
}

// DefaultTimeout bounds a single backend tool invocation.
const DefaultTimeout = 30 * time.Second

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, stdin io.Reader, tool string, args ...string) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdin = stdin

	name := filepath.Base(tool)
	start := time.Now()
	output, err := cmd.CombinedOutput()
	logger.Debug("backend tool finished",
		"tool", name, "duration", time.Since(start).String(), "error", err != nil)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %s", name, timeout)
		}
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			return fmt.Errorf("%s failed: %w: %s", name, err, trimmed)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// suArgs builds the argument vector for running tool as account through su,
// with a login environment and /bin/sh regardless of the account shell.
// args are joined into the command string; callers only ever pass
// grammar-validated identifiers, which cannot carry shell metacharacters.
func suArgs(account, tool string, args ...string) []string {
	command := tool
	if len(args) > 0 {
		command += " " + strings.Join(args, " ")
	}
	return []string{"-s", "/bin/sh", "-c", command, "--login", account}
}
