package optimize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbookctl/internal/core"
	"playbookctl/internal/reconcile"
	"playbookctl/internal/state"
	"playbookctl/internal/trace"
)

type fakeTransformer struct {
	calls []Request
	err   error
}

func (f *fakeTransformer) Name() string { return "fake" }

func (f *fakeTransformer) Transform(_ context.Context, req Request) error {
	f.calls = append(f.calls, req)
	return f.err
}

type project struct {
	root        string
	inventory   string
	pairs       core.PairSet
	provenance  *state.ProvenanceStore
	states      *state.OptimizationStore
	recorder    *trace.Recorder
	transformer *fakeTransformer
	opt         *Optimizer
}

func newProject(t *testing.T) *project {
	t.Helper()
	root := t.TempDir()
	p := &project{
		root:      root,
		inventory: filepath.Join(root, "inventory"),
		pairs: core.PairSet{
			{Role: core.RoleRequirements, Template: filepath.Join(root, "templates", "requirements.yml"), Destination: filepath.Join(root, "requirements.yml")},
			{Role: core.RoleSetup, Template: filepath.Join(root, "templates", "setup.yml"), Destination: filepath.Join(root, "setup.yml")},
			{Role: core.RoleGroupVars, Template: filepath.Join(root, "templates", "group_vars_mash_servers"), Destination: filepath.Join(root, "inventory", "group_vars", "mash_servers")},
		},
		recorder:    trace.NewRecorder(),
		transformer: &fakeTransformer{},
	}
	for _, pair := range p.pairs {
		write(t, pair.Template, "template for "+pair.Role+"\n")
	}

	ds, err := state.NewDirStore(filepath.Join(root, "var"))
	require.NoError(t, err)
	p.provenance = state.NewProvenanceStore(ds)
	p.states = state.NewOptimizationStore(ds)
	rec := reconcile.New(p.provenance, reconcile.WithSink(p.recorder))

	p.opt, err = New(p.pairs, p.states, p.provenance, rec, p.transformer, WithSink(p.recorder))
	require.NoError(t, err)
	return p
}

func (p *project) host(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(p.inventory, "host_vars", name, "vars.yml")
	write(t, path, name+"_enabled: true\n")
	canonical, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return canonical
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRestore_AbsentIsNotFound(t *testing.T) {
	p := newProject(t)

	_, err := p.opt.Restore()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSaveRestore_RoundTrip(t *testing.T) {
	p := newProject(t)
	paths := []string{p.host(t, "h2"), p.host(t, "h1")}

	require.NoError(t, p.opt.Save(paths))
	got, err := p.opt.Restore()
	require.NoError(t, err)
	if diff := cmp.Diff(paths, got); diff != "" {
		t.Fatalf("restore mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_RejectsEmptyAndMissing(t *testing.T) {
	p := newProject(t)

	err := p.opt.Save(nil)
	assert.True(t, errors.Is(err, core.ErrValidation))

	err = p.opt.Save([]string{filepath.Join(p.inventory, "host_vars", "ghost", "vars.yml")})
	assert.True(t, errors.Is(err, core.ErrValidation))

	st, err := p.opt.Status()
	require.NoError(t, err)
	assert.Equal(t, state.StatusAbsent, st.Status)
}

func TestRunOptimizationFor_SavesRecordsAndInvokes(t *testing.T) {
	p := newProject(t)
	paths := []string{p.host(t, "h1")}

	out, err := p.opt.RunOptimizationFor(context.Background(), paths)
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.NoError(t, out.Err())

	require.Len(t, p.transformer.calls, 1)
	assert.Equal(t, paths, p.transformer.calls[0].VarsPaths)
	assert.Equal(t, p.pairs, p.transformer.calls[0].Pairs)

	for _, pair := range p.pairs {
		digest, ok, err := p.provenance.Lookup(pair.LogicalName())
		require.NoError(t, err)
		require.True(t, ok, pair.LogicalName())
		want := core.NewHasher().FingerprintBytes([]byte("template for " + pair.Role + "\n"))
		assert.Equal(t, want, digest)
		assert.Equal(t, want, out.Provenance[pair.LogicalName()])

		// Only provenance is touched; destinations stay absent.
		_, statErr := os.Stat(pair.Destination)
		assert.True(t, os.IsNotExist(statErr))
	}

	st, err := p.opt.Status()
	require.NoError(t, err)
	assert.Equal(t, state.StatusSaved, st.Status)

	assert.Equal(t, []trace.EventKind{
		trace.EventStateSaved,
		trace.EventProvenanceRecorded,
		trace.EventProvenanceRecorded,
		trace.EventProvenanceRecorded,
		trace.EventTransformerInvoked,
	}, kinds(p.recorder))
}

func TestRunOptimizationFor_FailureKeepsSavedState(t *testing.T) {
	p := newProject(t)
	p.transformer.err = &core.ExternalToolFailure{Tool: "fake", ExitCode: 3}
	paths := []string{p.host(t, "h1")}

	out, err := p.opt.RunOptimizationFor(context.Background(), paths)
	require.NoError(t, err)
	require.NotNil(t, out.Failure)
	assert.Equal(t, 3, out.Failure.ExitCode)
	assert.False(t, out.Succeeded())
	assert.True(t, errors.Is(out.Err(), core.ErrExternalTool))

	got, err := p.opt.Restore()
	require.NoError(t, err)
	assert.Equal(t, paths, got)

	k := kinds(p.recorder)
	assert.Equal(t, trace.EventTransformerFailed, k[len(k)-1])
}

func TestRunOptimizationFor_OtherTransformerErrorsPropagate(t *testing.T) {
	p := newProject(t)
	p.transformer.err = core.Validationf("bad marker")

	_, err := p.opt.RunOptimizationFor(context.Background(), []string{p.host(t, "h1")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation))

	st, err := p.opt.Status()
	require.NoError(t, err)
	assert.Equal(t, state.StatusSaved, st.Status)
}

func TestRunOptimizationFor_InvalidPathsNeverInvoke(t *testing.T) {
	p := newProject(t)

	_, err := p.opt.RunOptimizationFor(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, p.transformer.calls)
}

func TestReplay_UsesSavedPaths(t *testing.T) {
	p := newProject(t)
	paths := []string{p.host(t, "b"), p.host(t, "a")}
	_, err := p.opt.RunOptimizationFor(context.Background(), paths)
	require.NoError(t, err)

	out, err := p.opt.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, paths, out.Paths)
	require.Len(t, p.transformer.calls, 2)
	assert.Equal(t, p.transformer.calls[0], p.transformer.calls[1])
	assert.Contains(t, kinds(p.recorder), trace.EventReplayed)
}

func TestReplay_AbsentIsNotFound(t *testing.T) {
	p := newProject(t)
	_, err := p.opt.Replay(context.Background())
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Empty(t, p.transformer.calls)
}

func TestReset_ClearsStateFilesAndProvenance(t *testing.T) {
	p := newProject(t)
	rec := reconcile.New(p.provenance)
	for _, pair := range p.pairs {
		_, err := rec.Ensure(pair)
		require.NoError(t, err)
	}
	require.NoError(t, p.opt.Save([]string{p.host(t, "h1")}))

	require.NoError(t, p.opt.Reset())

	_, err := p.opt.Restore()
	assert.True(t, errors.Is(err, core.ErrNotFound))
	for _, pair := range p.pairs {
		_, statErr := os.Stat(pair.Destination)
		assert.True(t, os.IsNotExist(statErr), pair.Destination)
		_, ok, err := p.provenance.Lookup(pair.LogicalName())
		require.NoError(t, err)
		assert.False(t, ok, pair.LogicalName())
		_, statErr = os.Stat(pair.Template)
		assert.NoError(t, statErr, "templates are never removed")
	}

	// Idempotent on ABSENT.
	require.NoError(t, p.opt.Reset())
}

func TestCleanTemplateDerived_MissingFilesAreFine(t *testing.T) {
	p := newProject(t)
	write(t, p.pairs[1].Destination, "user edits\n")
	require.NoError(t, p.provenance.Record(p.pairs[1].LogicalName(), "abc"))

	require.NoError(t, p.opt.CleanTemplateDerived())

	_, statErr := os.Stat(p.pairs[1].Destination)
	assert.True(t, os.IsNotExist(statErr))
	all, err := p.provenance.All()
	require.NoError(t, err)
	assert.Empty(t, all)

	k := kinds(p.recorder)
	assert.Equal(t, 1, count(k, trace.EventFileRemoved))
	assert.Equal(t, trace.EventStateCleared, k[len(k)-1])
}

func TestComputeForHost(t *testing.T) {
	p := newProject(t)
	h1 := p.host(t, "h1")

	got, err := ComputeForHost(p.inventory, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{h1}, got)

	_, err = ComputeForHost(p.inventory, "h2")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestComputeForAllHosts_SaveRestoreIdempotent(t *testing.T) {
	p := newProject(t)
	p.host(t, "web")
	p.host(t, "db")

	first, err := ComputeForAllHosts(p.inventory)
	require.NoError(t, err)
	require.NoError(t, p.opt.Save(first))

	second, err := ComputeForAllHosts(p.inventory)
	require.NoError(t, err)
	restored, err := p.opt.Restore()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, restored)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	p := newProject(t)
	_, err := New(p.pairs, nil, p.provenance, reconcile.New(p.provenance), p.transformer)
	assert.Error(t, err)

	_, err = New(p.pairs[:2], p.states, p.provenance, reconcile.New(p.provenance), p.transformer)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func kinds(r *trace.Recorder) []trace.EventKind {
	var out []trace.EventKind
	for _, e := range r.Snapshot() {
		out = append(out, e.Kind)
	}
	return out
}

func count(kinds []trace.EventKind, want trace.EventKind) int {
	n := 0
	for _, k := range kinds {
		if k == want {
			n++
		}
	}
	return n
}
