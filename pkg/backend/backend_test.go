package backend

import (
	"context"
	"io"
	"sync"
)

// fakeRunner records invocations instead of spawning processes.
type fakeCall struct {
	tool  string
	args  []string
	stdin string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []fakeCall
	fail  map[string]error // keyed by tool
	onRun func(tool string, args []string)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: make(map[string]error)}
}

func (r *fakeRunner) Run(ctx context.Context, stdin io.Reader, tool string, args ...string) error {
	input, _ := io.ReadAll(stdin)

	r.mu.Lock()
	r.calls = append(r.calls, fakeCall{tool: tool, args: args, stdin: string(input)})
	err := r.fail[tool]
	onRun := r.onRun
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if onRun != nil {
		onRun(tool, args)
	}
	return nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRunner) lastCall() fakeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}
