package starbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/go-delve/wincore/pkg/session"
)

const (
	// Globals named command_<name> become terminal commands.
	commandPrefix = "command_"
	ctxLocal      = "wincore_context"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context connects scripts to the terminal they run in.
type Context interface {
	Session() *session.Session
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	CallCommand(cmdstr string) error
}

// EchoWriter is the output of scripts. Echo writes only to the
// transcript, if one is active.
type EchoWriter interface {
	io.Writer
	Echo(string)
	Flush()
}

// Env holds the globals shared by every script run from one terminal.
type Env struct {
	ctx     Context
	out     EchoWriter
	globals starlark.StringDict
	doc     map[string]string
	loader  *loader

	mu      sync.Mutex
	running *starlark.Thread
	cancel  context.CancelFunc
}

// New returns an environment with the wincore builtins predeclared.
func New(ctx Context, out EchoWriter) *Env {
	starlark.Universe["time"] = startime.Module
	env := &Env{
		ctx:     ctx,
		out:     out,
		globals: starlark.StringDict{},
		doc:     map[string]string{},
	}
	env.loader = newLoader(env.globals)
	env.defineGeneralBuiltins()
	env.defineSessionBuiltins()
	return env
}

// builtinFn is the body of a builtin, cancellation and error positions are
// handled by define.
type builtinFn func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func (env *Env) define(name, signature, descr string, fn builtinFn) {
	env.globals[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := threadContext(thread).Err(); err != nil {
			return starlark.None, positioned(thread, err)
		}
		v, err := fn(thread, args, kwargs)
		if err != nil {
			return starlark.None, positioned(thread, err)
		}
		return v, nil
	})
	env.doc[name] = "builtin " + name + signature + "\n\n" + descr
}

func (env *Env) defineGeneralBuiltins() {
	env.define("wincore_command", "(Command)", "wincore_command runs a terminal command, its arguments are joined with spaces.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		words := make([]string, len(args))
		for i, a := range args {
			s, ok := starlark.AsString(a)
			if !ok {
				return nil, fmt.Errorf("argument %d of wincore_command is not a string", i)
			}
			words[i] = s
		}
		return starlark.None, env.ctx.CallCommand(strings.Join(words, " "))
	})

	env.define("read_file", "(Path)", "read_file returns the contents of a file as a string.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := unpackArgs(args, kwargs, []string{"Path"}, &path); err != nil {
			return nil, err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return starlark.String(buf), nil
	})

	env.define("write_file", "(Path, Text)", "write_file writes Text to Path, values that are not strings are written in their printed form.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("wrong number of arguments")
		}
		path, ok := starlark.AsString(args[0])
		if !ok {
			return nil, fmt.Errorf("first argument of write_file is not a string")
		}
		text, ok := starlark.AsString(args[1])
		if !ok {
			text = args[1].String()
		}
		return starlark.None, os.WriteFile(path, []byte(text), 0640)
	})

	env.define("help", "(Object)", "help prints the documentation of a builtin or user defined function, without arguments it lists the builtins.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 1 {
			return nil, fmt.Errorf("wrong number of arguments")
		}
		env.printHelp(args)
		return starlark.None, nil
	})
}

func (env *Env) printHelp(args starlark.Tuple) {
	if len(args) == 0 {
		names := make([]string, 0, len(env.doc))
		for name := range env.doc {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(env.out, "Available builtins:")
		for _, name := range names {
			fmt.Fprintf(env.out, "\t%s\n", name)
		}
		return
	}
	switch x := args[0].(type) {
	case *starlark.Builtin:
		if d := env.doc[x.Name()]; d != "" {
			fmt.Fprintln(env.out, d)
		} else {
			fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
		}
	case *starlark.Function:
		fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
		if d := x.Doc(); d != "" {
			fmt.Fprintln(env.out, d)
		}
	default:
		fmt.Fprintf(env.out, "no help for object of type %s\n", args[0].Type())
	}
}

// Redirect sends the output of scripts to out.
func (env *Env) Redirect(out EchoWriter) {
	env.out = out
}

// Execute runs the script at path, or source if it is not nil (a string,
// a []byte or an io.Reader). Globals starting with an upper case letter are
// kept for later scripts and command_ functions are registered as
// commands. If the script defines mainFnName it is then called with args.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []interface{}) (v starlark.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = starlark.None, fmt.Errorf("panic executing starlark script: %v", r)
			fmt.Fprintf(env.out, "%v\n%s", err, debug.Stack())
		}
	}()

	thread := env.newThread(path)
	globals, err := starlark.ExecFile(thread, path, source, env.globals)
	if err != nil {
		return starlark.None, err
	}
	env.exportGlobals(globals)

	if mainFnName == "" || globals[mainFnName] == nil {
		return starlark.None, nil
	}
	mainfn, ok := globals[mainFnName].(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	argv := make(starlark.Tuple, len(args))
	for i := range args {
		argv[i] = env.toStarlark(args[i])
	}
	return starlark.Call(thread, mainfn, argv, nil)
}

func (env *Env) exportGlobals(globals starlark.StringDict) {
	for name, val := range globals {
		if cmd := strings.TrimPrefix(name, commandPrefix); cmd != name {
			if fn, ok := val.(*starlark.Function); ok {
				env.registerCommand(cmd, fn)
			}
			continue
		}
		if r, _ := utf8.DecodeRuneInString(name); unicode.IsUpper(r) {
			env.globals[name] = val
		}
	}
}

// registerCommand turns fn into a terminal command. A function with a
// single parameter called args receives the command line as a string,
// any other function receives the command line evaluated as a starlark
// tuple.
func (env *Env) registerCommand(name string, fn *starlark.Function) {
	help := fn.Doc()
	if help == "" {
		help = "user defined"
	}
	raw := false
	if fn.NumParams() == 1 {
		p0, _ := fn.Param(0)
		raw = p0 == "args"
	}
	env.ctx.RegisterCommand(name, help, func(args string) error {
		thread := env.newThread("command " + name)
		argv := starlark.Tuple{starlark.String(args)}
		if !raw {
			v, err := starlark.Eval(thread, "<input>", "("+args+")", env.globals)
			if err != nil {
				return err
			}
			if t, ok := v.(starlark.Tuple); ok {
				argv = t
			} else {
				argv = starlark.Tuple{v}
			}
		}
		_, err := starlark.Call(thread, fn, argv, nil)
		return err
	})
}

// Cancel interrupts the script or command currently running, if any.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.cancel != nil {
		env.cancel()
		env.cancel = nil
	}
	if env.running != nil {
		env.running.Cancel("user interrupt")
	}
}

func (env *Env) newThread(name string) *starlark.Thread {
	ctx, cancel := context.WithCancel(context.Background())
	thread := &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) },
		Load:  env.loader.load,
	}
	thread.SetLocal(ctxLocal, ctx)
	env.mu.Lock()
	env.running, env.cancel = thread, cancel
	env.mu.Unlock()
	return thread
}

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(ctxLocal).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// positioned prefixes err with the script position of the builtin call.
func positioned(thread *starlark.Thread, err error) error {
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %v", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %v", pos.Filename(), pos.Line, err)
}
