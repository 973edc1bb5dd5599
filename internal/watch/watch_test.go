package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"playbookctl/internal/core"
	"playbookctl/internal/reconcile"
	"playbookctl/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	pair    core.TemplatePair
	rec     *reconcile.Reconciler
	reports chan reconcile.DriftReport
	cancel  context.CancelFunc
	done    chan error
}

func start(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	pair := core.TemplatePair{
		Role:        core.RoleSetup,
		Template:    filepath.Join(root, "templates", "setup.yml"),
		Destination: filepath.Join(root, "setup.yml"),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(pair.Template), 0o755))
	require.NoError(t, os.WriteFile(pair.Template, []byte("v1\n"), 0o644))

	rec := reconcile.New(state.NewProvenanceStore(state.NewMemoryStore()))
	_, err := rec.Ensure(pair)
	require.NoError(t, err)

	f := &fixture{pair: pair, rec: rec, reports: make(chan reconcile.DriftReport, 16), done: make(chan error, 1)}
	w := New(core.PairSet{pair}, rec, nil).WithDebounce(30 * time.Millisecond)
	w.OnReport = func(r reconcile.DriftReport) { f.reports <- r }

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- w.Run(ctx) }()
	// Let the watch register before writing.
	time.Sleep(100 * time.Millisecond)
	return f
}

func (f *fixture) stop(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case err := <-f.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func (f *fixture) next(t *testing.T) reconcile.DriftReport {
	t.Helper()
	select {
	case r := <-f.reports:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no drift report")
		return reconcile.DriftReport{}
	}
}

func TestWatcher_ReportsTemplateChange(t *testing.T) {
	f := start(t)
	defer f.stop(t)

	require.NoError(t, os.WriteFile(f.pair.Template, []byte("v2\n"), 0o644))

	r := f.next(t)
	assert.True(t, r.Changed())
	assert.True(t, r.DestinationExists)

	data, err := os.ReadFile(f.pair.Destination)
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(data), "existing destinations are never rewritten")
}

func TestWatcher_ReseedsMissingDestination(t *testing.T) {
	f := start(t)
	defer f.stop(t)

	require.NoError(t, os.Remove(f.pair.Destination))
	require.NoError(t, os.WriteFile(f.pair.Template, []byte("v3\n"), 0o644))

	r := f.next(t)
	assert.False(t, r.DestinationExists)

	data, err := os.ReadFile(f.pair.Destination)
	require.NoError(t, err)
	assert.Equal(t, "v3\n", string(data))
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	f := start(t)
	f.stop(t)
}
