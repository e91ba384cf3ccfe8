package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/roach88/bman/internal/scenarios"
)

// FakeRunner is a scenarios.Runner that returns canned outcomes and counts
// invocations per scenario id.
//
// Outcomes are keyed by scenario id. Scenarios without a canned outcome
// exit 0 with "ok" on stdout.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FakeRunner struct {
	mu       sync.Mutex
	calls    map[string]int
	argv     map[string][]string
	outcomes map[string]scenarios.Outcome
	errs     map[string]error
	byArgv   map[string]scenarios.Outcome
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		calls:    map[string]int{},
		argv:     map[string][]string{},
		outcomes: map[string]scenarios.Outcome{},
		errs:     map[string]error{},
		byArgv:   map[string]scenarios.Outcome{},
	}
}

// Exit makes scenario id exit with code and print stdout.
func (f *FakeRunner) Exit(id string, code int, stdout string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[id] = scenarios.Outcome{ExitCode: &code, Stdout: []byte(stdout)}
	return f
}

// ExitArgv is like Exit but matches any scenario whose joined argv equals
// argv. Scenario id matches take precedence.
func (f *FakeRunner) ExitArgv(argv string, code int, stdout string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byArgv[argv] = scenarios.Outcome{ExitCode: &code, Stdout: []byte(stdout)}
	return f
}

// Fail makes scenario id return err instead of an outcome.
func (f *FakeRunner) Fail(id string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
	return f
}

// Run implements scenarios.Runner.
func (f *FakeRunner) Run(_ context.Context, inv scenarios.Invocation) (scenarios.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[inv.ScenarioID]++
	f.argv[inv.ScenarioID] = append([]string(nil), inv.Argv...)
	if err := f.errs[inv.ScenarioID]; err != nil {
		return scenarios.Outcome{}, err
	}
	if out, ok := f.outcomes[inv.ScenarioID]; ok {
		return out, nil
	}
	if out, ok := f.byArgv[strings.Join(inv.Argv, " ")]; ok {
		return out, nil
	}
	zero := 0
	return scenarios.Outcome{ExitCode: &zero, Stdout: []byte("ok\n")}, nil
}

// Calls returns how often scenario id ran.
func (f *FakeRunner) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// TotalCalls returns the number of runs across all scenarios.
func (f *FakeRunner) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// LastArgv returns the argv scenario id last ran with.
func (f *FakeRunner) LastArgv(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.argv[id]
}

// Reset forgets recorded calls but keeps canned outcomes.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = map[string]int{}
	f.argv = map[string][]string{}
}
