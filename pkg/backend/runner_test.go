//go:build unix

package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	r := &ExecRunner{}

	err := r.Run(context.Background(), strings.NewReader("hunter2\n"),
		"/bin/sh", "-c", `read pw && [ "$pw" = hunter2 ]`)
	assert.NoError(t, err, "stdin must reach the child process")

	err = r.Run(context.Background(), strings.NewReader(""),
		"/bin/sh", "-c", "echo bad password >&2; exit 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad password", "tool output belongs in the error")
}

func TestExecRunnerTimeout(t *testing.T) {
	r := &ExecRunner{Timeout: 50 * time.Millisecond}

	start := time.Now()
	err := r.Run(context.Background(), strings.NewReader(""), "/bin/sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSuArgs(t *testing.T) {
	args := suArgs("bob", "kinit", "bob@EXAMPLE.COM")
	assert.Equal(t, []string{"-s", "/bin/sh", "-c", "kinit bob@EXAMPLE.COM", "--login", "bob"}, args)

	args = suArgs("bob", "clog")
	assert.Equal(t, []string{"-s", "/bin/sh", "-c", "clog", "--login", "bob"}, args)
}
