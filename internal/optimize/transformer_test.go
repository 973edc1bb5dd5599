package optimize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbookctl/internal/core"
	"playbookctl/internal/runner"
)

type fakeRunner struct {
	got    []runner.Command
	result runner.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, c runner.Command) (runner.Result, error) {
	f.got = append(f.got, c)
	return f.result, f.err
}

func testPairs(root string) core.PairSet {
	return core.PairSet{
		{Role: core.RoleRequirements, Template: filepath.Join(root, "templates", "requirements.yml"), Destination: filepath.Join(root, "requirements.yml")},
		{Role: core.RoleSetup, Template: filepath.Join(root, "templates", "setup.yml"), Destination: filepath.Join(root, "setup.yml")},
		{Role: core.RoleGroupVars, Template: filepath.Join(root, "templates", "group_vars_mash_servers"), Destination: filepath.Join(root, "inventory", "group_vars", "mash_servers")},
	}
}

func TestExternalTransformer_Arguments(t *testing.T) {
	fr := &fakeRunner{}
	tr := &ExternalTransformer{Runner: fr, Command: "bin/optimize.py", Dir: "/p"}
	req := Request{VarsPaths: []string{"/p/inventory/host_vars/a/vars.yml", "/p/inventory/host_vars/b/vars.yml"}, Pairs: testPairs("/p")}

	require.NoError(t, tr.Transform(context.Background(), req))
	require.Len(t, fr.got, 1)
	assert.Equal(t, "bin/optimize.py", fr.got[0].Name)
	assert.Equal(t, "/p", fr.got[0].Dir)
	assert.Equal(t, []string{
		"--vars-paths=/p/inventory/host_vars/a/vars.yml /p/inventory/host_vars/b/vars.yml",
		"--src-requirements-yml-path=/p/templates/requirements.yml",
		"--src-setup-yml-path=/p/templates/setup.yml",
		"--src-group-vars-yml-path=/p/templates/group_vars_mash_servers",
		"--dst-requirements-yml-path=/p/requirements.yml",
		"--dst-setup-yml-path=/p/setup.yml",
		"--dst-group-vars-yml-path=/p/inventory/group_vars/mash_servers",
	}, fr.got[0].Args)
}

func TestExternalTransformer_PrefixArgs(t *testing.T) {
	fr := &fakeRunner{}
	tr := &ExternalTransformer{Runner: fr, Command: "python3", Args: []string{"bin/optimize.py"}}
	require.NoError(t, tr.Transform(context.Background(), Request{VarsPaths: []string{"/v"}, Pairs: testPairs("/p")}))
	assert.Equal(t, "bin/optimize.py", fr.got[0].Args[0])
	assert.Equal(t, "--vars-paths=/v", fr.got[0].Args[1])
}

func TestExternalTransformer_NonZeroExit(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{ExitCode: 2, Stderr: []byte("boom\n")}}
	tr := &ExternalTransformer{Runner: fr, Command: "bin/optimize.py"}

	err := tr.Transform(context.Background(), Request{VarsPaths: []string{"/v"}, Pairs: testPairs("/p")})
	var failure *core.ExternalToolFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 2, failure.ExitCode)
	assert.Contains(t, failure.Error(), "boom")
}

func TestExternalTransformer_StartFailure(t *testing.T) {
	fr := &fakeRunner{result: runner.Result{ExitCode: 127}, err: errors.New("no such file")}
	tr := &ExternalTransformer{Runner: fr, Command: "missing"}

	err := tr.Transform(context.Background(), Request{VarsPaths: []string{"/v"}, Pairs: testPairs("/p")})
	assert.True(t, errors.Is(err, core.ErrExternalTool))
}

func TestExternalTransformer_IncompletePairs(t *testing.T) {
	tr := &ExternalTransformer{Runner: &fakeRunner{}, Command: "x"}
	err := tr.Transform(context.Background(), Request{VarsPaths: []string{"/v"}, Pairs: testPairs("/p")[:1]})
	assert.True(t, errors.Is(err, core.ErrValidation))
}

const builtinRequirements = `- src: git+https://example.com/traefik
  name: traefik
  activation_prefix: ""
- src: git+https://example.com/miniflux
  name: miniflux
  activation_prefix: miniflux_
`

const builtinSetup = `- hosts: mash_servers
  roles:
    # role-specific:traefik
    - role: galaxy/traefik
    # /role-specific:traefik
    # role-specific:miniflux
    - role: galaxy/miniflux
    # /role-specific:miniflux
`

const builtinGroupVars = `mash_playbook_generic_secret_key: ''
# role-specific:miniflux
miniflux_enabled: true
# /role-specific:miniflux
`

func builtinProject(t *testing.T) (string, core.PairSet) {
	t.Helper()
	root := t.TempDir()
	pairs := testPairs(root)
	write(t, pairs[0].Template, builtinRequirements)
	write(t, pairs[1].Template, builtinSetup)
	write(t, pairs[2].Template, builtinGroupVars)
	return root, pairs
}

func TestBuiltinTransformer_FiltersDisabledRoles(t *testing.T) {
	root, pairs := builtinProject(t)
	vars := filepath.Join(root, "inventory", "host_vars", "h1", "vars.yml")
	write(t, vars, "traefik_config_entrypoint: web\n")

	tr := &BuiltinTransformer{}
	require.NoError(t, tr.Transform(context.Background(), Request{VarsPaths: []string{vars}, Pairs: pairs}))

	setup, err := os.ReadFile(pairs[1].Destination)
	require.NoError(t, err)
	assert.Equal(t, "- hosts: mash_servers\n  roles:\n    - role: galaxy/traefik\n", string(setup))

	gv, err := os.ReadFile(pairs[2].Destination)
	require.NoError(t, err)
	assert.Equal(t, "mash_playbook_generic_secret_key: ''\n", string(gv))

	_, err = os.Stat(pairs[0].Destination)
	assert.True(t, os.IsNotExist(err), "requirements are not rewritten by default")
}

func TestBuiltinTransformer_WriteRequirements(t *testing.T) {
	root, pairs := builtinProject(t)
	vars := filepath.Join(root, "inventory", "host_vars", "h1", "vars.yml")
	write(t, vars, "miniflux_database_password: x\n")

	tr := &BuiltinTransformer{WriteRequirements: true}
	require.NoError(t, tr.Transform(context.Background(), Request{VarsPaths: []string{vars}, Pairs: pairs}))

	req, err := os.ReadFile(pairs[0].Destination)
	require.NoError(t, err)
	assert.Equal(t, builtinRequirements, string(req))

	gv, err := os.ReadFile(pairs[2].Destination)
	require.NoError(t, err)
	assert.Contains(t, string(gv), "miniflux_enabled: true")
}

func TestBuiltinTransformer_BadMarkerIsValidationError(t *testing.T) {
	root, pairs := builtinProject(t)
	write(t, pairs[1].Template, "# role-specific:unknown\n# /role-specific:unknown\n")
	vars := filepath.Join(root, "v.yml")
	write(t, vars, "")

	err := (&BuiltinTransformer{}).Transform(context.Background(), Request{VarsPaths: []string{vars}, Pairs: pairs})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.Contains(t, err.Error(), "line 1")
}
