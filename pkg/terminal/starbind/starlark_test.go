package starbind

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.starlark.net/starlark"

	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/session"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/winarch"
)

type echoBuffer struct {
	bytes.Buffer
}

func (*echoBuffer) Echo(string) {}
func (*echoBuffer) Flush()      {}

type fakeContext struct {
	sess     *session.Session
	commands map[string]func(string) error
	called   []string
}

func (ctx *fakeContext) Session() *session.Session { return ctx.sess }

func (ctx *fakeContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	ctx.commands[name] = fn
}

func (ctx *fakeContext) CallCommand(cmdstr string) error {
	ctx.called = append(ctx.called, cmdstr)
	return nil
}

func newTestEnv(t *testing.T) (*Env, *fakeContext, *echoBuffer) {
	snap := snapshot.New(winarch.AMD64, 7)
	snap.AddThread(snapshot.Thread{ID: 3, TEB: 0x1000})
	snap.AddSection(snapshot.CoreThreadPrefix+"3", procinfo.EncodeUTF16(winarch.AMD64, "main"))
	tib := make([]byte, winarch.AMD64.TIBSize())
	binary.LittleEndian.PutUint64(tib[48:], 0x1000)
	snap.AddMemory(0x1000, tib)

	sess := session.New(&config.Config{}, nil)
	if _, err := sess.SetSnapshot(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	ctx := &fakeContext{sess: sess, commands: map[string]func(string) error{}}
	out := &echoBuffer{}
	return New(ctx, out), ctx, out
}

func TestBuiltins(t *testing.T) {
	env, ctx, out := newTestEnv(t)
	script := `
def main():
    ths = threads()
    print(len(ths), ths[0].ID, ths[0].Name)
    print("0x%x" % tlb())
    print(current_thread())
    print(stop_signal())
    wincore_command("info w32 tib")
`
	if _, err := env.Execute("test.star", script, "main", nil); err != nil {
		t.Fatal(err)
	}
	want := "1 3 main\n0x1000\n3\nNone\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
	if len(ctx.called) != 1 || ctx.called[0] != "info w32 tib" {
		t.Errorf("commands called %q", ctx.called)
	}
}

func TestTIBBuiltin(t *testing.T) {
	env, _, _ := newTestEnv(t)
	v, err := env.Execute("test.star", "def main():\n    return tib()\n", "main", nil)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := v.(starlark.String)
	if !ok || !strings.HasPrefix(string(s), "Thread Information Block Thread 0x3 at 0x1000\n") {
		t.Errorf("got %v", v)
	}
}

func TestUserCommand(t *testing.T) {
	env, ctx, out := newTestEnv(t)
	script := `
def command_hello(args):
    "says hello"
    print("hello", args)
`
	if _, err := env.Execute("test.star", script, "", nil); err != nil {
		t.Fatal(err)
	}
	fn := ctx.commands["hello"]
	if fn == nil {
		t.Fatal("command not registered")
	}
	if err := fn("world"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello world\n" {
		t.Errorf("got %q", out.String())
	}
}

func TestBuiltinErrors(t *testing.T) {
	env, _, _ := newTestEnv(t)
	for _, src := range []string{
		"def main():\n    info_proc('bogus')\n",
		"def main():\n    exception()\n",
		"def main():\n    current_thread(99)\n",
		"def main():\n    read_memory(Addr=0x1000, Len=8, Extra=1)\n",
	} {
		if _, err := env.Execute("test.star", src, "main", nil); err == nil {
			t.Errorf("%q did not fail", src)
		}
	}
}

func TestLoadRelative(t *testing.T) {
	env, _, out := newTestEnv(t)
	dir := t.TempDir()
	lib := "def tlb_hex():\n    return \"0x%x\" % tlb()\n"
	if err := os.WriteFile(filepath.Join(dir, "lib.star"), []byte(lib), 0600); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.star")
	src := "load(\"lib.star\", \"tlb_hex\")\ndef main():\n    print(tlb_hex())\n"
	if err := os.WriteFile(main, []byte(src), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Execute(main, nil, "main", nil); err != nil {
		t.Fatal(err)
	}
	if out.String() != "0x1000\n" {
		t.Errorf("got %q", out.String())
	}
}

func TestHelpAndFiles(t *testing.T) {
	env, _, out := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "out.txt")
	script := "def main(path):\n    write_file(path, 42)\n    help(tlb)\n    return read_file(path)\n"
	v, err := env.Execute("test.star", script, "main", []interface{}{path})
	if err != nil {
		t.Fatal(err)
	}
	if v != starlark.String("42") {
		t.Errorf("read back %v", v)
	}
	if !strings.HasPrefix(out.String(), "builtin tlb()\n\ntlb returns") {
		t.Errorf("help output %q", out.String())
	}
	out.Reset()
	env.Execute("test.star", "help()\n", "", nil)
	if !strings.Contains(out.String(), "\twincore_command\n") || !strings.Contains(out.String(), "\tread_memory\n") {
		t.Errorf("builtin list %q", out.String())
	}
}

func TestExportGlobals(t *testing.T) {
	env, _, _ := newTestEnv(t)
	if _, err := env.Execute("a.star", "Shared = 7\nprivate = 1\n", "", nil); err != nil {
		t.Fatal(err)
	}
	v, err := env.Execute("b.star", "def main():\n    return Shared\n", "main", nil)
	if err != nil || v.String() != "7" {
		t.Errorf("Shared = %v %v", v, err)
	}
	if _, err := env.Execute("c.star", "x = private\n", "", nil); err == nil {
		t.Error("lower case global exported")
	}
}
