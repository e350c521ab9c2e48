package starbind

// Code in this file is derived from go.starlark.net/repl/repl.go
// Which is licensed under the following copyright:
//
// Copyright (c) 2017 The Bazel Authors.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are
// met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the
//    distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived
//    from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
// "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
// LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
// A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
// HOLDER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
// LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
// DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
// THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
// (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/go-delve/liner"
)

const (
	normalPrompt = ">>> "
	extraPrompt  = "... "

	exitCommand = "exit"
)

// REPL reads starlark statements from the terminal and evaluates them
// until EOF or "exit". Globals defined at the prompt are then kept like
// the globals of a script.
func (env *Env) REPL() error {
	r := &repl{
		rl:      liner.NewLiner(),
		out:     env.out,
		thread:  env.newThread("repl"),
		globals: make(starlark.StringDict, len(env.globals)),
	}
	defer r.rl.Close()
	for k, v := range env.globals {
		r.globals[k] = v
	}
	for {
		if err := threadContext(r.thread).Err(); err != nil {
			return err
		}
		err := r.step()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(env.out)
	env.exportGlobals(r.globals)
	return nil
}

type repl struct {
	rl      *liner.State
	out     EchoWriter
	thread  *starlark.Thread
	globals starlark.StringDict

	prompt string
	eof    bool
}

// step reads one statement, which may span several lines, and evaluates
// it. Starlark errors are printed, only errors from the line editor are
// returned.
func (r *repl) step() error {
	defer r.out.Flush()
	r.prompt, r.eof = normalPrompt, false

	f, err := syntax.ParseCompoundStmt("<stdin>", r.readLine)
	if err != nil {
		if r.eof {
			return io.EOF
		}
		r.report(err)
		return nil
	}
	if len(f.Stmts) == 1 {
		if stmt, ok := f.Stmts[0].(*syntax.ExprStmt); ok {
			r.eval(stmt.X)
			return nil
		}
	}
	r.exec(f)
	return nil
}

func (r *repl) readLine() ([]byte, error) {
	line, err := r.rl.Prompt(r.prompt)
	r.out.Echo(r.prompt + line + "\n")
	if line == exitCommand {
		r.eof = true
		return nil, io.EOF
	}
	r.rl.AppendHistory(line)
	r.prompt = extraPrompt
	if err != nil {
		r.eof = err == io.EOF
		return nil, err
	}
	return []byte(line + "\n"), nil
}

func (r *repl) eval(expr syntax.Expr) {
	v, err := starlark.EvalExpr(r.thread, expr, r.globals)
	if err != nil {
		r.report(err)
		return
	}
	if v != starlark.None {
		fmt.Fprintln(r.out, v)
	}
}

// exec runs f without freezing its globals, they become predeclared names
// for the next statement even if execution failed halfway.
func (r *repl) exec(f *syntax.File) {
	prog, err := starlark.FileProgram(f, r.globals.Has)
	if err != nil {
		r.report(err)
		return
	}
	res, err := prog.Init(r.thread, r.globals)
	if err != nil {
		r.report(err)
	}
	for k, v := range res {
		r.globals[k] = v
	}
}

func (r *repl) report(err error) {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		fmt.Fprintln(r.out, evalErr.Backtrace())
		return
	}
	fmt.Fprintln(r.out, err)
}

// loader executes the modules named by load statements, each one at most
// once. Modules see the wincore builtins and relative module paths are
// resolved against the directory of the loading script.
type loader struct {
	predeclared starlark.StringDict
	cache       map[string]*loadResult
}

type loadResult struct {
	globals starlark.StringDict
	err     error
}

func newLoader(predeclared starlark.StringDict) *loader {
	return &loader{predeclared: predeclared, cache: map[string]*loadResult{}}
}

func (l *loader) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	path := module
	if !filepath.IsAbs(path) && thread.CallStackDepth() > 0 {
		if from := thread.CallFrame(0).Pos.Filename(); from != "" && !strings.HasPrefix(from, "<") {
			path = filepath.Join(filepath.Dir(from), module)
		}
	}
	res, seen := l.cache[path]
	if seen {
		if res == nil {
			return nil, fmt.Errorf("cycle in load graph at %s", module)
		}
		return res.globals, res.err
	}
	l.cache[path] = nil
	child := &starlark.Thread{Name: "load " + path, Load: l.load, Print: thread.Print}
	child.SetLocal(ctxLocal, thread.Local(ctxLocal))
	globals, err := starlark.ExecFile(child, path, nil, l.predeclared)
	l.cache[path] = &loadResult{globals, err}
	return globals, err
}
