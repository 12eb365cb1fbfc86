package dictionary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
)

// File is the content of a dictionary file: the fragment-relative
// dictionary and the raw list path.
type File struct {
	Dict Dictionary
	List string
}

// FileError reports a dictionary file that cannot be evaluated or does not
// export the expected values.
type FileError struct {
	Name   string
	Reason string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("dictionary %s: %s", e.Name, e.Reason)
}

// Loader evaluates dictionary files. A file is a JavaScript module that
// exports `dict`, an object of logical field name to path, and `list`, a
// path string. CommonJS (module.exports = {...}) and ES module
// (export const dict = ...) files are both accepted.
//
// Each file runs in a fresh VM with no host bindings; require is not
// available.
type Loader struct {
	// Timeout bounds evaluation of one file. Zero means no limit beyond
	// the context.
	Timeout time.Duration
}

// Load evaluates code. name is used in error messages.
func (l Loader) Load(ctx context.Context, name, code string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	js, err := toCommonJS(name, code)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	require := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("require(%q) is not available in dictionary files", call.Argument(0).String()))
	}

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()
	if l.Timeout > 0 {
		timer := time.AfterFunc(l.Timeout, func() { vm.Interrupt("evaluation timed out") })
		defer timer.Stop()
	}

	wrapper, err := vm.RunScript(name, "(function (exports, require, module) {\n"+js+"\n})")
	if err != nil {
		return nil, l.evalError(ctx, name, err)
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, &FileError{Name: name, Reason: "module wrapper is not callable"}
	}
	if _, err := fn(goja.Undefined(), exports, vm.ToValue(require), module); err != nil {
		return nil, l.evalError(ctx, name, err)
	}
	return readExports(vm, name, module.Get("exports"))
}

func (l Loader) evalError(ctx context.Context, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &FileError{Name: name, Reason: err.Error()}
}

func toCommonJS(name, code string) (string, error) {
	res := api.Transform(code, api.TransformOptions{
		Sourcefile: name,
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ES2020,
		LogLevel:   api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, m := range res.Errors {
			if m.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			} else {
				msgs = append(msgs, m.Text)
			}
		}
		return "", &FileError{Name: name, Reason: strings.Join(msgs, "; ")}
	}
	return string(res.Code), nil
}

func readExports(vm *goja.Runtime, name string, v goja.Value) (*File, error) {
	if absent(v) {
		return nil, &FileError{Name: name, Reason: "module has no exports"}
	}
	exp := v.ToObject(vm)
	// export default { dict, list }
	if absent(exp.Get("dict")) {
		if def, ok := exp.Get("default").(*goja.Object); ok {
			exp = def
		}
	}

	dictObj, ok := exp.Get("dict").(*goja.Object)
	if !ok {
		return nil, &FileError{Name: name, Reason: "dict is not exported as an object"}
	}
	keys := dictObj.Keys()
	dict := make(Dictionary, 0, len(keys))
	for _, k := range keys {
		p, ok := dictObj.Get(k).Export().(string)
		if !ok {
			return nil, &FileError{Name: name, Reason: fmt.Sprintf("dict.%s is not a string", k)}
		}
		dict = append(dict, Entry{Field: k, Path: p, Defined: true})
	}

	lv := exp.Get("list")
	if absent(lv) {
		return nil, &FileError{Name: name, Reason: "list is not exported"}
	}
	list, ok := lv.Export().(string)
	if !ok {
		return nil, &FileError{Name: name, Reason: "list is not a string"}
	}
	return &File{Dict: dict, List: list}, nil
}

func absent(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
