package optimize

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"playbookctl/internal/core"
	"playbookctl/internal/rolefilter"
	"playbookctl/internal/runner"
	"playbookctl/internal/state"
)

// Request is what a Transformer receives: the enabled vars files and the
// template/destination pair of every generated file.
type Request struct {
	VarsPaths []string
	Pairs     core.PairSet
}

func (r Request) pair(role string) (core.TemplatePair, error) {
	p, ok := r.Pairs.ByRole(role)
	if !ok {
		return core.TemplatePair{}, core.Validationf("no %s pair in transformer request", role)
	}
	return p, nil
}

// Transformer rewrites the generated files so they only carry the roles the
// vars files enable.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, req Request) error
}

// DefaultExternalCommand is the optimizer script shipped with playbook
// projects, relative to the project directory.
const DefaultExternalCommand = "bin/optimize.py"

// ExternalTransformer delegates to an out-of-process optimizer.
//
// The command is called as
//
//	<command> [args...] --vars-paths=<paths joined by space>
//	    --src-requirements-yml-path=.. --src-setup-yml-path=.. --src-group-vars-yml-path=..
//	    --dst-requirements-yml-path=.. --dst-setup-yml-path=.. --dst-group-vars-yml-path=..
//
// and a non-zero exit is reported as *core.ExternalToolFailure.
type ExternalTransformer struct {
	Runner  runner.Runner
	Command string
	Args    []string

	// Dir is the working directory, normally the project directory.
	Dir string

	Stdout io.Writer
	Stderr io.Writer
}

func (t *ExternalTransformer) Name() string {
	return t.Command
}

// Arguments returns the argument list for req, after the configured Args.
func (t *ExternalTransformer) Arguments(req Request) ([]string, error) {
	requirements, err := req.pair(core.RoleRequirements)
	if err != nil {
		return nil, err
	}
	setup, err := req.pair(core.RoleSetup)
	if err != nil {
		return nil, err
	}
	groupVars, err := req.pair(core.RoleGroupVars)
	if err != nil {
		return nil, err
	}

	args := append([]string(nil), t.Args...)
	return append(args,
		"--vars-paths="+strings.Join(req.VarsPaths, " "),
		"--src-requirements-yml-path="+requirements.Template,
		"--src-setup-yml-path="+setup.Template,
		"--src-group-vars-yml-path="+groupVars.Template,
		"--dst-requirements-yml-path="+requirements.Destination,
		"--dst-setup-yml-path="+setup.Destination,
		"--dst-group-vars-yml-path="+groupVars.Destination,
	), nil
}

func (t *ExternalTransformer) Transform(ctx context.Context, req Request) error {
	if t.Runner == nil {
		return fmt.Errorf("external transformer %s: no runner", t.Command)
	}
	args, err := t.Arguments(req)
	if err != nil {
		return err
	}
	res, err := t.Runner.Run(ctx, runner.Command{
		Name:   t.Command,
		Args:   args,
		Dir:    t.Dir,
		Stdout: t.Stdout,
		Stderr: t.Stderr,
	})
	if err != nil {
		return &core.ExternalToolFailure{Tool: t.Command, ExitCode: res.ExitCode, Stderr: string(res.Stderr), Err: err}
	}
	if !res.Succeeded() {
		return &core.ExternalToolFailure{Tool: t.Command, ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	return nil
}

// BuiltinTransformer performs the optimization in-process.
//
// The setup and group-vars destinations are rewritten from their templates
// with disabled role-specific blocks removed. The requirements destination
// is only rewritten when WriteRequirements is set.
type BuiltinTransformer struct {
	WriteRequirements bool
	Logger            *zap.Logger
}

func (t *BuiltinTransformer) Name() string {
	return "builtin"
}

func (t *BuiltinTransformer) Transform(ctx context.Context, req Request) error {
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	requirements, err := req.pair(core.RoleRequirements)
	if err != nil {
		return err
	}

	vars, err := rolefilter.LoadVariableNames(req.VarsPaths)
	if err != nil {
		return err
	}
	defs, err := rolefilter.LoadRoleDefinitions(requirements.Template)
	if err != nil {
		return err
	}
	enabled, sets := rolefilter.Resolve(defs, vars)
	logger.Debug("resolved enabled roles",
		zap.Int("known", len(sets.Known)),
		zap.Int("enabled", len(sets.Enabled)))

	if t.WriteRequirements {
		data, err := rolefilter.EncodeRoleDefinitions(enabled)
		if err != nil {
			return fmt.Errorf("encode requirements: %w", err)
		}
		if err := state.WriteFileAtomic(requirements.Destination, data, 0o644); err != nil {
			return &core.IOError{Op: "write", Path: requirements.Destination, Err: err}
		}
	}

	for _, role := range []string{core.RoleSetup, core.RoleGroupVars} {
		if err := ctx.Err(); err != nil {
			return err
		}
		pair, err := req.pair(role)
		if err != nil {
			return err
		}
		out, err := rolefilter.FilterFile(pair.Template, sets)
		if err != nil {
			return err
		}
		if err := state.WriteFileAtomic(pair.Destination, []byte(out), 0o644); err != nil {
			return &core.IOError{Op: "write", Path: pair.Destination, Err: err}
		}
		logger.Info("rewrote generated file", zap.String("file", pair.Destination), zap.String("template", pair.Template))
	}
	return nil
}
