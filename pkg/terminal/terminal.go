package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"

	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/session"
	"github.com/go-delve/wincore/pkg/terminal/starbind"
)

const (
	historyFile                 string = ".wincore_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
	ansiYellow                         = 33
)

// Term represents the terminal running wincore.
type Term struct {
	sess        *session.Session
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	dumb        bool
	stdout      *transcriptWriter
	completions *trie.Trie
	InitFile    string
	starlarkEnv *starbind.Env

	ctxMu  sync.Mutex
	cancel context.CancelFunc
}

// New returns a new Term.
func New(sess *session.Session, conf *config.Config) *Term {
	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	t := newTerm(sess, conf, w)
	t.dumb = dumb
	t.line = liner.NewLiner()
	return t
}

func newTerm(sess *session.Session, conf *config.Config, w io.Writer) *Term {
	cmds := DebugCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	t := &Term{
		sess:   sess,
		conf:   conf,
		prompt: "(wincore) ",
		cmds:   cmds,
		dumb:   true,
		stdout: &transcriptWriter{pw: &pagingWriter{w: w}},
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	t.buildCompletions()
	return t
}

// Session returns the debugging session of the terminal.
func (t *Term) Session() *session.Session {
	return t.sess
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
	t.stdout.CloseTranscript()
}

// Warnf prints a warning. It can be used as the warning sink of the
// session.
func (t *Term) Warnf(format string, args ...interface{}) {
	t.stdout.Flush()
	prefix := "warning: "
	if !t.dumb {
		prefix = fmt.Sprintf(terminalHighlightEscapeCode, ansiYellow) + prefix + terminalResetEscapeCode
	}
	fmt.Fprintf(t.stdout, prefix+format+"\n", args...)
}

// context returns the context of the command being run. It is cancelled
// by SIGINT.
func (t *Term) context() context.Context {
	t.ctxMu.Lock()
	defer t.ctxMu.Unlock()
	var ctx context.Context
	ctx, t.cancel = context.WithCancel(context.Background())
	return ctx
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.starlarkEnv.Cancel()
		t.ctxMu.Lock()
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		t.ctxMu.Unlock()
		fmt.Fprintln(os.Stderr, "Quit")
	}
}

// buildCompletions fills the completion trie with every command alias and
// every sub-command.
func (t *Term) buildCompletions() {
	t.completions = trie.New()
	for _, cmd := range t.cmds.cmds {
		for _, alias := range cmd.aliases {
			t.completions.Add(alias, nil)
			for _, sub := range cmd.subcommands {
				t.completions.Add(alias+" "+sub, nil)
			}
		}
	}
}

func (t *Term) complete(line string) []string {
	c := t.completions.PrefixSearch(strings.ToLower(line))
	sort.Strings(c)
	return c
}

// Run reads commands from the user until exit is requested or input ends
// and returns the exit status of the program.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go t.sigintGuard(ch)

	t.line.SetCompleter(t.complete)
	t.loadHistory()
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		if err := t.cmds.executeFile(t, t.InitFile); err != nil {
			if isExitRequest(err) {
				return t.exit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	var last string
	for {
		line, err := t.line.Prompt(t.prompt)
		if err == io.EOF {
			fmt.Println("exit")
			return t.exit()
		}
		if err != nil {
			return 1, fmt.Errorf("reading command: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		t.stdout.Echo(t.prompt + line + "\n")
		if strings.TrimSpace(line) == "" {
			line = last
		} else {
			t.line.AppendHistory(line)
		}
		last = line

		err = t.cmds.Call(line, t)
		if isExitRequest(err) {
			return t.exit()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
		t.stdout.Flush()
		t.stdout.pw.Reset()
	}
}

func isExitRequest(err error) bool {
	_, ok := err.(ExitRequestError)
	return ok
}

func (t *Term) historyPath() string {
	if t.conf.HistoryFile != "" {
		return t.conf.HistoryFile
	}
	p, _ := config.GetConfigFilePath(historyFile)
	return p
}

func (t *Term) loadHistory() {
	f, err := os.Open(t.historyPath())
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open history file: %v. History will not be saved for this session.\n", err)
		return
	}
	defer f.Close()
	t.line.ReadHistory(f)
}

func (t *Term) saveHistory() {
	f, err := os.Create(t.historyPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error saving history file:", err)
		return
	}
	defer f.Close()
	if _, err := t.line.WriteHistory(f); err != nil {
		fmt.Fprintln(os.Stderr, "readline history error:", err)
	}
}

// exit saves the history and releases the target.
func (t *Term) exit() (int, error) {
	t.saveHistory()
	if err := t.sess.Close(); err != nil {
		return 1, err
	}
	return 0, nil
}
