package scenarios

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/schema"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeRunner returns canned outcomes and counts calls per scenario.
type fakeRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	outputs map[string]Outcome
	errs    map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: map[string]int{}, outputs: map[string]Outcome{}, errs: map[string]error{}}
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[inv.ScenarioID]++
	if err := f.errs[inv.ScenarioID]; err != nil {
		return Outcome{}, err
	}
	if out, ok := f.outputs[inv.ScenarioID]; ok {
		return out, nil
	}
	zero := 0
	return Outcome{ExitCode: &zero, Stdout: []byte("ok\n")}, nil
}

// rootSink writes straight into the pack so the next Run sees the
// evidence as published.
type rootSink struct {
	root    docpack.Root
	written []string
}

func (s *rootSink) WriteJSON(rel string, v any) error {
	s.written = append(s.written, rel)
	return s.root.WriteJSON(rel, v)
}

type mapReader map[string]string

func (m mapReader) ReadFile(rel string) ([]byte, error) {
	data, ok := m[rel]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(data), nil
}

func intPtr(v int) *int { return &v }

func testPlan() *Plan {
	return &Plan{
		SchemaVersion: 1,
		Scenarios: []Spec{
			{ID: "help", Kind: KindHelp, Argv: []string{"--help"}, Expect: Expect{ExitCode: intPtr(0)}},
			{ID: "list", Argv: []string{"-l"}, Covers: []string{"-l"}, Expect: Expect{ExitCode: intPtr(0)}},
		},
	}
}

func newRunRequest(t *testing.T, runner Runner) (RunRequest, *rootSink) {
	t.Helper()
	root, err := docpack.Open(t.TempDir())
	require.NoError(t, err)
	sink := &rootSink{root: root}
	return RunRequest{
		Root:       root,
		Plan:       testPlan(),
		Binary:     "/bin/true",
		BinaryName: "tool",
		InputsHash: "h1",
		Mode:       ModeDefault,
		Runner:     runner,
		Sink:       sink,
		Clock:      fixedClock{t: time.UnixMilli(1_700_000_000_000)},
	}, sink
}

func TestRunIsIdempotentWhenCached(t *testing.T) {
	runner := newFakeRunner()
	req, _ := newRunRequest(t, runner)

	first, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Report.RunCount)
	assert.Equal(t, 2, first.Report.PassCount)

	req.Index = LoadIndex(req.Root)
	second, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Report.RunCount)
	assert.Equal(t, 2, second.Report.SkippedCount)
	assert.Equal(t, 1, runner.calls["help"])
	assert.Equal(t, 1, runner.calls["list"])
}

func TestRunRerunsOnlyEditedScenario(t *testing.T) {
	runner := newFakeRunner()
	req, _ := newRunRequest(t, runner)

	_, err := Run(context.Background(), req)
	require.NoError(t, err)

	req.Plan.Scenarios[1].Argv = []string{"-l", "-a"}
	req.Index = LoadIndex(req.Root)
	res, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.RunCount)
	assert.Equal(t, 1, res.Report.SkippedCount)
	assert.Equal(t, 2, runner.calls["list"])
	assert.Equal(t, 1, runner.calls["help"])
}

func TestRunReexecutesWhenEvidenceMissing(t *testing.T) {
	runner := newFakeRunner()
	req, _ := newRunRequest(t, runner)

	_, err := Run(context.Background(), req)
	require.NoError(t, err)
	idx := LoadIndex(req.Root)
	path, ok := idx.LatestEvidence("list")
	require.True(t, ok)
	require.NoError(t, os.Remove(req.Root.Path(path)))

	req.Index = idx
	res, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.RunCount)
	assert.Equal(t, 2, runner.calls["list"])
	assert.Equal(t, 1, runner.calls["help"])
}

func TestRunRerunAllAndForced(t *testing.T) {
	runner := newFakeRunner()
	req, _ := newRunRequest(t, runner)
	_, err := Run(context.Background(), req)
	require.NoError(t, err)

	req.Index = LoadIndex(req.Root)
	req.ForcedIDs = []string{" list ", "list", "nope"}
	res, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, res.ExecutedForcedIDs)
	assert.Equal(t, []string{"unknown rerun scenario id: nope"}, res.Warnings)
	assert.Equal(t, 2, runner.calls["list"])

	req.Index = LoadIndex(req.Root)
	req.ForcedIDs = nil
	req.Mode = ModeRerunAll
	res, err = Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.RunCount)
}

func TestRunRecordsRunnerFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["list"] = errors.New("exec format error")
	req, sink := newRunRequest(t, runner)

	res, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.FailCount)

	entry, ok := res.Index.Get("list")
	require.True(t, ok)
	assert.False(t, entry.LastPass)
	assert.Equal(t, []string{"scenario runner failed: exec format error"}, entry.Failures)
	assert.Empty(t, entry.EvidencePaths)
	assert.NotContains(t, sink.written, EvidencePath("list", 1_700_000_000_000))
}

func TestRunSkipsEvidenceForUnpublished(t *testing.T) {
	runner := newFakeRunner()
	req, sink := newRunRequest(t, runner)
	no := false
	req.Plan.Scenarios[0].Publish = &no

	_, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotContains(t, sink.written, EvidencePath("help", 1_700_000_000_000))
	assert.Contains(t, sink.written, EvidencePath("list", 1_700_000_000_000))
}

func TestRunAutoTargetsRespectBudget(t *testing.T) {
	runner := newFakeRunner()
	req, _ := newRunRequest(t, runner)
	req.Plan.Verification = &VerificationConfig{Policy: &Policy{MaxNewRunsPerApply: intPtr(1)}}
	req.AutoTargets = []AutoTarget{{SurfaceID: "-a"}, {SurfaceID: "-b"}}

	res, err := Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls[AutoScenarioID("-a")])
	assert.Zero(t, runner.calls[AutoScenarioID("-b")])
	assert.Equal(t, 3, res.Report.ScenarioCount)
}

func TestRunStopsOnCancel(t *testing.T) {
	req, _ := newRunRequest(t, newFakeRunner())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDigestIgnoresScenarioID(t *testing.T) {
	plan := testPlan()
	a := plan.Scenarios[1]
	b := a
	b.ID = "renamed"

	_, da, err := EffectiveConfig(plan, a)
	require.NoError(t, err)
	_, db, err := EffectiveConfig(plan, b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	b.Argv = []string{"-la"}
	_, dc, err := EffectiveConfig(plan, b)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}

func TestDigestIgnoresPredicateOrder(t *testing.T) {
	a := Spec{ID: "x", Expect: Expect{StdoutContainsAll: []string{"b", "a"}}}
	b := Spec{ID: "x", Expect: Expect{StdoutContainsAll: []string{"a", "b"}}}
	_, da, err := EffectiveConfig(nil, a)
	require.NoError(t, err)
	_, db, err := EffectiveConfig(nil, b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestEffectiveConfigPrecedence(t *testing.T) {
	plan := &Plan{
		DefaultEnv: map[string]string{"A": "plan", "B": "plan"},
		Defaults:   &Defaults{Env: map[string]string{"B": "defaults", "C": "defaults"}, TimeoutSeconds: 9},
	}
	cfg, _, err := EffectiveConfig(plan, Spec{ID: "x", Env: map[string]string{"C": "spec"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "plan", "B": "defaults", "C": "spec"}, cfg.Env)
	assert.Equal(t, 9, cfg.TimeoutSeconds)
	assert.Equal(t, "off", cfg.NetMode)
	assert.Equal(t, 12, cfg.SnippetMaxLines)
}

func TestShouldRun(t *testing.T) {
	pass := &IndexEntry{ScenarioDigest: "d", LastPass: true}
	fail := &IndexEntry{ScenarioDigest: "d", LastPass: false}

	tests := []struct {
		name   string
		mode   RunMode
		digest string
		entry  *IndexEntry
		cached bool
		forced bool
		want   bool
	}{
		{"no entry", ModeDefault, "d", nil, false, false, true},
		{"cached pass", ModeDefault, "d", pass, true, false, false},
		{"digest changed", ModeDefault, "e", pass, true, false, true},
		{"last failed", ModeDefault, "d", fail, true, false, true},
		{"evidence gone", ModeDefault, "d", pass, false, false, true},
		{"forced", ModeDefault, "d", pass, true, true, true},
		{"rerun all", ModeRerunAll, "d", pass, true, false, true},
		{"rerun failed pass", ModeRerunFailed, "e", pass, true, false, false},
		{"rerun failed fail", ModeRerunFailed, "d", fail, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRun(tt.mode, tt.digest, tt.entry, tt.cached, tt.forced))
		})
	}
}

func TestParseRunMode(t *testing.T) {
	_, err := ParseRunMode(true, true)
	require.Error(t, err)
	mode, err := ParseRunMode(false, true)
	require.NoError(t, err)
	assert.Equal(t, ModeRerunFailed, mode)
}

func TestCheck(t *testing.T) {
	zero, one := 0, 1
	out := Outcome{ExitCode: &one, Stdout: []byte("hello world\n"), Stderr: []byte("warn\n")}

	failures := Check(Expect{ExitCode: &zero, StdoutContainsAll: []string{"hello", "bye"}}, out)
	assert.Equal(t, []string{
		"expected exit_code 0, observed 1",
		`stdout missing substring "bye"`,
	}, failures)

	assert.Empty(t, Check(Expect{
		ExitCode:          &one,
		StdoutContainsAny: []string{"nope", "world"},
		StdoutRegexAll:    []string{`^hello`},
		StderrRegexAny:    []string{`x+`, `warn`},
	}, out))

	assert.Equal(t, []string{"timed out"}, Check(Expect{}, Outcome{TimedOut: true}))

	bad := Check(Expect{StdoutRegexAll: []string{"("}}, out)
	require.Len(t, bad, 1)
	assert.Contains(t, bad[0], "is invalid")
}

func TestNewEvidenceLimits(t *testing.T) {
	var out []byte
	for i := 0; i < 20; i++ {
		out = append(out, "line\n"...)
	}
	plan := testPlan()

	behavior := Spec{ID: "long", Argv: []string{"-l"}}
	cfg, digest, err := EffectiveConfig(plan, behavior)
	require.NoError(t, err)
	ev := NewEvidence(behavior, digest, cfg, Outcome{ExitCode: intPtr(0), Stdout: out}, nil, 1)
	assert.Equal(t, string(out), ev.Stdout)
	assert.False(t, ev.StdoutTruncated)

	huge := make([]byte, 70*1024)
	for i := range huge {
		huge[i] = 'x'
	}
	ev = NewEvidence(behavior, digest, cfg, Outcome{ExitCode: intPtr(0), Stdout: huge}, nil, 1)
	assert.Len(t, ev.Stdout, 64*1024)
	assert.True(t, ev.StdoutTruncated)

	auto := AutoScenarios([]AutoTarget{{SurfaceID: "-l"}})[0]
	cfg, digest, err = EffectiveConfig(plan, auto)
	require.NoError(t, err)
	ev = NewEvidence(auto, digest, cfg, Outcome{ExitCode: intPtr(0), Stdout: out}, nil, 1)
	assert.Equal(t, 12*len("line\n"), len(ev.Stdout))
	assert.True(t, ev.StdoutTruncated)
	assert.Equal(t, auto.ID, ev.ScenarioID)
}

func TestProcessEnv(t *testing.T) {
	t.Setenv("BMAN_HOST_VAR", "a=b")

	sandboxed := processEnv("/work", Invocation{Env: map[string]string{"LC_ALL": "en_US.UTF-8"}})
	assert.Contains(t, sandboxed, "HOME=/work")
	assert.Contains(t, sandboxed, "LC_ALL=en_US.UTF-8")
	assert.Contains(t, sandboxed, "TZ=UTC")
	assert.NotContains(t, sandboxed, "BMAN_HOST_VAR=a=b")

	host := processEnv("/work", Invocation{NoSandbox: true})
	assert.Contains(t, host, "BMAN_HOST_VAR=a=b")
}

func TestTruncate(t *testing.T) {
	s, cut := Truncate("a\nb\nc\n", 2, 0)
	assert.Equal(t, "a\nb\n", s)
	assert.True(t, cut)

	s, cut = Truncate("a\nb\n", 2, 0)
	assert.Equal(t, "a\nb\n", s)
	assert.False(t, cut)

	s, cut = Truncate("héllo", 0, 2)
	assert.Equal(t, "h", s)
	assert.True(t, cut)
}

func TestFileStemAndEvidencePath(t *testing.T) {
	assert.Equal(t, "auto_verify__--all", FileStem("auto_verify::--all"))
	assert.Equal(t, "inventory/scenarios/a_b-42.json", EvidencePath("a/b", 42))
}

func TestLoadPlanWithYAMLCatalog(t *testing.T) {
	src := mapReader{
		docpack.ScenarioPlanPath: `{"schema_version":1,"scenarios":[{"id":"one","argv":["-a"]}]}`,
		"scenarios/extra.yaml":   "scenarios:\n  - id: two\n    argv: [\"-b\"]\n",
	}
	plan, err := LoadPlan(src, "scenarios/extra.yaml")
	require.NoError(t, err)
	require.Len(t, plan.Scenarios, 2)
	assert.Equal(t, "two", plan.Scenarios[1].ID)
}

func TestLoadPlanDuplicateAcrossFiles(t *testing.T) {
	src := mapReader{
		docpack.ScenarioPlanPath: `{"schema_version":1,"scenarios":[{"id":"one"}]}`,
		"scenarios/extra.json":   `{"scenarios":[{"id":"one"}]}`,
	}
	_, err := LoadPlan(src, "scenarios/extra.json")
	verr, ok := schema.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "scenarios/extra.json", verr.File)
	assert.Contains(t, verr.Issues[0].Message, docpack.ScenarioPlanPath)
}

func TestLoadPlanSchemaError(t *testing.T) {
	src := mapReader{docpack.ScenarioPlanPath: `{"schema_version":1,"scenarios":[{"id":"-bad"}]}`}
	_, err := LoadPlan(src, "")
	_, ok := schema.AsValidationError(err)
	assert.True(t, ok)
}

func TestLoadIndexFallsBackToEmpty(t *testing.T) {
	idx := LoadIndex(mapReader{docpack.ScenarioIndexPath: "{not json"})
	assert.Empty(t, idx.Entries)
	idx.Put(IndexEntry{ScenarioID: "b"})
	idx.Put(IndexEntry{ScenarioID: "a"})
	assert.Equal(t, "a", idx.Entries[0].ScenarioID)
}

func TestMaterialize(t *testing.T) {
	seedDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "base.txt"), []byte("base"), 0o644))

	work := t.TempDir()
	err := Materialize(work, seedDir, []SeedEntry{
		{Path: "dir", Kind: "dir"},
		{Path: "dir/file.txt", Kind: "file", Contents: "hi"},
		{Path: "link", Kind: "symlink", Target: "dir/file.txt"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(work, "base.txt"))
	require.NoError(t, err)
	assert.Equal(t, "base", string(data))
	data, err = os.ReadFile(filepath.Join(work, "link"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	require.Error(t, Materialize(t.TempDir(), "", []SeedEntry{{Path: "../escape", Kind: "file"}}))
}

func TestProcessRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	runner := NewProcessRunner(nil)

	out, err := runner.Run(context.Background(), Invocation{
		ScenarioID: "echo",
		Binary:     "/bin/sh",
		Argv:       []string{"-c", "cat seed.txt; echo $GREETING; exit 3"},
		Env:        map[string]string{"GREETING": "hello"},
		Seed:       []SeedEntry{{Path: "seed.txt", Kind: "file", Contents: "seeded\n"}},
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, out.ExitCode)
	assert.Equal(t, 3, *out.ExitCode)
	assert.Equal(t, "seeded\nhello\n", string(out.Stdout))

	out, err = runner.Run(context.Background(), Invocation{
		ScenarioID: "sleep",
		Binary:     "/bin/sh",
		Argv:       []string{"-c", "sleep 5"},
		Timeout:    100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.Equal(t, []string{"timed out"}, Check(Expect{ExitCode: intPtr(0)}, out))

	_, err = runner.Run(context.Background(), Invocation{ScenarioID: "missing", Binary: "/nonexistent/bin"})
	require.Error(t, err)
}

func TestAutoScenarios(t *testing.T) {
	specs := AutoScenarios([]AutoTarget{{SurfaceID: "--color", RequiresArgv: []string{"show"}}})
	require.Len(t, specs, 1)
	assert.Equal(t, "auto_verify::--color", specs[0].ID)
	assert.Equal(t, []string{"show", "--color"}, specs[0].Argv)
	assert.True(t, specs[0].IsAuto())
	assert.Equal(t, TierAcceptance, specs[0].EffectiveCoverageTier())
}
