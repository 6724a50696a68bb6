// Package script executes function tools as embedded Risor or Starlark
// scripts via go-polyscript.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/robbyt/go-polyscript/engines/risor"
	"github.com/robbyt/go-polyscript/engines/starlark"
	"github.com/robbyt/go-polyscript/platform"
	"github.com/robbyt/go-polyscript/platform/constants"
	"github.com/robbyt/go-polyscript/platform/data"
	"github.com/robbyt/go-polyscript/platform/script/loader"

	"github.com/a5c-ai/mcpml/internal/config"
	"github.com/a5c-ai/mcpml/internal/errs"
)

// Script engines.
const (
	EngineRisor    = "risor"
	EngineStarlark = "starlark"
)

// Function is a compiled function-tool script ready to run.
type Function struct {
	name      string
	engine    string
	timeout   time.Duration
	evaluator platform.Evaluator
	provider  data.Provider
}

// Compile builds a Function from a tool entry, resolving its source and
// compiling the script. Compilation happens once, at startup, so a broken
// script fails the whole config load instead of the first call.
func Compile(cfg *config.Config, tool config.Tool) (*Function, error) {
	engine, err := pickEngine(tool)
	if err != nil {
		return nil, err
	}

	scriptLoader, err := newLoader(cfg, tool)
	if err != nil {
		return nil, err
	}

	handler := slog.Default().Handler()
	var ev platform.Evaluator
	switch engine {
	case EngineRisor:
		ev, err = risor.FromRisorLoader(handler, scriptLoader)
	case EngineStarlark:
		ev, err = starlark.FromStarlarkLoader(handler, scriptLoader)
	}
	if err != nil {
		return nil, errs.Wrapf(err, "Could not compile the %s script for tool %q.", engine, tool.Name)
	}

	return &Function{
		name:      tool.Name,
		engine:    engine,
		timeout:   cfg.Settings.ToolTimeout,
		evaluator: ev,
		provider:  data.NewContextProvider(constants.EvalData),
	}, nil
}

// Engine reports which script engine backs the function.
func (f *Function) Engine() string { return f.engine }

// Call runs the script with the given arguments and returns its result.
// Arguments are exposed to the script under the "args" key.
func (f *Function) Call(ctx context.Context, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	enriched, err := f.provider.AddDataToContext(ctx, map[string]any{"args": args})
	if err != nil {
		return nil, errs.Wrapf(err, "Could not prepare arguments for tool %q.", f.name)
	}

	start := time.Now()
	result, err := f.evaluator.Eval(enriched)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errs.Wrapf(err, "Tool %q timed out after %s.", f.name, f.timeout)
		}
		return nil, errs.Wrapf(err, "Tool %q failed.", f.name)
	}
	slog.Debug("script executed", "tool", f.name, "engine", f.engine, "duration", time.Since(start))

	return result.Interface(), nil
}

// pickEngine decides between Risor and Starlark, from the explicit engine
// field if set, otherwise from the implementation's file extension. Inline
// code defaults to Risor.
func pickEngine(tool config.Tool) (string, error) {
	switch tool.Engine {
	case EngineRisor, EngineStarlark:
		return tool.Engine, nil
	case "":
	default:
		return "", errs.Error{Reason: fmt.Sprintf("Tool %q has unknown engine %q; supported engines are: risor, starlark.", tool.Name, tool.Engine)}
	}

	switch ext := strings.ToLower(filepath.Ext(tool.Implementation)); ext {
	case ".risor", ".rsr":
		return EngineRisor, nil
	case ".star", ".bzl":
		return EngineStarlark, nil
	case "":
		// Inline code with no explicit engine.
		return EngineRisor, nil
	default:
		return "", errs.Error{Reason: fmt.Sprintf("Tool %q implementation %q has unrecognized extension %s; set engine explicitly.", tool.Name, tool.Implementation, ext)}
	}
}

func newLoader(cfg *config.Config, tool config.Tool) (loader.Loader, error) {
	if tool.Code != "" {
		l, err := loader.NewFromString(tool.Code)
		if err != nil {
			return nil, errs.Wrapf(err, "Could not load inline code for tool %q.", tool.Name)
		}
		return l, nil
	}

	uri := tool.Implementation
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		l, err := loader.NewFromHTTP(uri)
		if err != nil {
			return nil, errs.Wrapf(err, "Could not load %s for tool %q.", uri, tool.Name)
		}
		return l, nil
	}

	path := cfg.Resolve(strings.TrimPrefix(uri, "file://"))
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrapf(err, "Could not resolve %s for tool %q.", path, tool.Name)
	}
	l, err := loader.NewFromDisk(abs)
	if err != nil {
		return nil, errs.Wrapf(err, "Could not load %s for tool %q.", abs, tool.Name)
	}
	return l, nil
}
