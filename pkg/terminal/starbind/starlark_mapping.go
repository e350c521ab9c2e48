package starbind

import (
	"bytes"
	"fmt"

	"go.starlark.net/starlark"

	"github.com/go-delve/wincore/pkg/procinfo"
)

// unpackArgs stores positional and keyword arguments into dsts, in the
// order given by names.
func unpackArgs(args starlark.Tuple, kwargs []starlark.Tuple, names []string, dsts ...interface{}) error {
	if len(args) > len(names) {
		return fmt.Errorf("too many arguments")
	}
	for i := range args {
		if args[i] == starlark.None {
			continue
		}
		if err := fromStarlark(args[i], dsts[i], names[i]); err != nil {
			return err
		}
	}
kwloop:
	for _, kv := range kwargs {
		name, _ := kv[0].(starlark.String)
		for i := range names {
			if names[i] == string(name) {
				if err := fromStarlark(kv[1], dsts[i], names[i]); err != nil {
					return err
				}
				continue kwloop
			}
		}
		return fmt.Errorf("unknown argument %q", kv[0])
	}
	return nil
}

// defineSessionBuiltins exposes the session to scripts.
func (env *Env) defineSessionBuiltins() {
	env.define("threads", "()", "threads returns the threads of the target, with their names and thread environment blocks.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		ths, err := env.ctx.Session().Threads(threadContext(thread))
		if err != nil {
			return nil, err
		}
		return env.toStarlark(ths), nil
	})

	env.define("current_thread", "(ID)", "current_thread selects thread ID, if given, and returns the id of the selected thread.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var id int
		if err := unpackArgs(args, kwargs, []string{"ID"}, &id); err != nil {
			return nil, err
		}
		sess := env.ctx.Session()
		if id != 0 {
			if err := sess.SetCurrentThread(threadContext(thread), id); err != nil {
				return nil, err
			}
		}
		return starlark.MakeInt(sess.CurrentThread()), nil
	})

	env.define("modules", "()", "modules returns the modules recorded in the snapshot, without the main executable.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		mods, err := env.ctx.Session().Modules()
		if err != nil {
			return nil, err
		}
		return env.toStarlark(mods), nil
	})

	env.define("library_list", "()", "library_list returns the XML library list of the snapshot.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		text, err := env.ctx.Session().LibraryList()
		if err != nil {
			return nil, err
		}
		return starlark.String(text), nil
	})

	env.define("exception", "()", "exception returns the exception record of the snapshot.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		rec, err := env.ctx.Session().Exception()
		if err != nil {
			return nil, err
		}
		return env.toStarlark(rec), nil
	})

	env.define("stop_signal", "()", "stop_signal returns the name of the signal corresponding to the exception of the snapshot, or None.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		sig, ok := env.ctx.Session().StopSignal()
		if !ok {
			return starlark.None, nil
		}
		return starlark.String(sig.String()), nil
	})

	env.define("info_proc", "(What)", "info_proc returns a dictionary with the cmdline, cwd and exe of the current process.\nWhat is one of \"\", \"cmdline\", \"cwd\", \"exe\" or \"all\"; unreadable fields are omitted.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var whatName string
		if err := unpackArgs(args, kwargs, []string{"What"}, &whatName); err != nil {
			return nil, err
		}
		what, err := procinfo.ParseWhat(whatName)
		if err != nil {
			return nil, err
		}
		info, err := env.ctx.Session().ProcessInfo(threadContext(thread), what)
		if err != nil {
			return nil, err
		}
		m := map[string]string{}
		for name, v := range map[string]*string{"cmdline": info.Cmdline, "cwd": info.Cwd, "exe": info.Exe} {
			if v != nil {
				m[name] = *v
			}
		}
		return env.toStarlark(m), nil
	})

	env.define("tib", "(Thread)", "tib returns the thread information block of Thread, or of the current thread, as printed by \"info w32 tib\".", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var tid int
		if err := unpackArgs(args, kwargs, []string{"Thread"}, &tid); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := env.ctx.Session().DisplayTIB(threadContext(thread), &buf, tid); err != nil {
			return nil, err
		}
		return starlark.String(buf.String()), nil
	})

	env.define("tlb", "()", "tlb returns the value of $_tlb, the address of the thread information block of the current thread.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		addr, _, err := env.ctx.Session().TLB()
		if err != nil {
			return nil, err
		}
		return starlark.MakeUint64(addr), nil
	})

	env.define("read_memory", "(Addr, Len)", "read_memory reads Len bytes of target memory at Addr.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addr uint64
		var n int
		if err := unpackArgs(args, kwargs, []string{"Addr", "Len"}, &addr, &n); err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("negative length")
		}
		buf := make([]byte, n)
		rn, err := env.ctx.Session().ReadMemory(buf, addr)
		if err != nil && rn == 0 {
			return nil, err
		}
		return starlark.Bytes(buf[:rn]), nil
	})
}
