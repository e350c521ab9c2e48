// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/session"
	"github.com/go-delve/wincore/pkg/winsignal"
	"github.com/go-delve/wincore/pkg/wintypes"
)

type callContext struct {
	Ctx context.Context
}

type cmdfunc func(t *Term, ctx callContext, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	subcommands    []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the wincore terminal.
type Commands struct {
	cmds []command
}

// subcommand is a word following a prefix command such as "info".
type subcommand struct {
	names   []string
	helpMsg string
	fn      cmdfunc
}

func findSubcommand(subs []subcommand, name string) (subcommand, bool) {
	for _, sub := range subs {
		for _, n := range sub.names {
			if n == name {
				return sub, true
			}
		}
	}
	return subcommand{}, false
}

func subcommandNames(subs []subcommand) []string {
	var r []string
	for _, sub := range subs {
		r = append(r, sub.names...)
	}
	return r
}

func dispatchSubcommand(prefix string, subs []subcommand, t *Term, ctx callContext, args string) error {
	vals := split2PartsBySpace(args)
	if vals[0] == "" {
		fmt.Fprintf(t.stdout, "%q must be followed by the name of a subcommand.\n", prefix)
		fmt.Fprintf(t.stdout, "List of %s subcommands:\n\n", prefix)
		for _, sub := range subs {
			fmt.Fprintf(t.stdout, "%s %s -- %s\n", prefix, sub.names[0], sub.helpMsg)
		}
		return nil
	}
	sub, ok := findSubcommand(subs, vals[0])
	if !ok {
		return fmt.Errorf("undefined %s command: %q", prefix, vals[0])
	}
	rest := ""
	if len(vals) > 1 {
		rest = vals[1]
	}
	return sub.fn(t, ctx, rest)
}

var infoSubcommands = []subcommand{
	{[]string{"w32"}, "Print information specific to Win32 debugging.", func(t *Term, ctx callContext, args string) error {
		return dispatchSubcommand("info w32", w32Subcommands, t, ctx, args)
	}},
	{[]string{"proc"}, "Show additional information about a process.", infoProc},
	{[]string{"sharedlibrary", "dll"}, "Status of loaded shared object libraries.", infoSharedLibrary},
	{[]string{"exception"}, "Show the exception recorded in the core snapshot.", infoException},
	{[]string{"signals"}, "What debugger does when program gets various signals.", infoSignals},
	{[]string{"types"}, "All Windows types built so far.", infoTypes},
}

var w32Subcommands = []subcommand{
	{[]string{"thread-information-block", "tib"}, "Display thread information block.", infoTIB},
}

var maintSetSubcommands = []subcommand{
	{[]string{"show-all-tib"}, "Set whether to display all non-zero fields of thread information block.", maintSetShowAllTIB},
}

var maintShowSubcommands = []subcommand{
	{[]string{"show-all-tib"}, "Show whether to display all non-zero fields of thread information block.", maintShowShowAllTIB},
}

var maintSubcommands = []subcommand{
	{[]string{"set"}, "Set internal debugger settings.", func(t *Term, ctx callContext, args string) error {
		return dispatchSubcommand("maint set", maintSetSubcommands, t, ctx, args)
	}},
	{[]string{"show"}, "Show internal debugger settings.", func(t *Term, ctx callContext, args string) error {
		return dispatchSubcommand("maint show", maintShowSubcommands, t, ctx, args)
	}},
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"info", "i"}, group: infoCmds, cmdFn: infoCommand, subcommands: append(subcommandNames(infoSubcommands), "w32 tib", "w32 thread-information-block", "proc cmdline", "proc cwd", "proc exe", "proc all"), helpMsg: `Generic command for showing things about the target.

	info w32 thread-information-block [thread]
	info w32 tib [thread]
	info proc [cmdline|cwd|exe|all]
	info sharedlibrary
	info exception
	info signals
	info types

"info w32 tib" prints the thread information block of the current thread. Use "maint set show-all-tib on" to also print the non-zero unnamed slots of the block.
"info proc" prints the command line, current working directory and executable of the current process.`},
		{aliases: []string{"maintenance", "maint", "mt"}, group: otherCmds, cmdFn: maintCommand, subcommands: []string{"set show-all-tib", "show show-all-tib"}, helpMsg: `Commands for use by debugger maintainers.

	maint set show-all-tib on|off
	maint show show-all-tib`},
		{aliases: []string{"threads"}, group: threadCmds, cmdFn: threads, helpMsg: `Print out info for every traced thread.`},
		{aliases: []string{"thread", "tr"}, group: threadCmds, cmdFn: thread, helpMsg: `Switch to the specified thread.

	thread <id>`},
		{aliases: []string{"print", "p"}, group: dataCmds, cmdFn: printVar, helpMsg: `Evaluate a convenience variable.

	print $_tlb
	print $_siginfo

$_tlb is the address of the thread information block of the current thread, $_siginfo is the exception record of the core snapshot.`},
		{aliases: []string{"set"}, group: dataCmds, cmdFn: setVar, helpMsg: `Changes the value of a convenience variable.

	set <variable> = <value>

$_tlb can not be changed.`},
		{aliases: []string{"ptype", "whatis"}, group: dataCmds, cmdFn: ptype, helpMsg: `Prints the type of a convenience variable or the definition of a Windows type.

	ptype $_tlb
	ptype <type name>`},
		{aliases: []string{"examinemem", "x"}, group: dataCmds, cmdFn: examineMemoryCmd, helpMsg: `Examine raw memory at the given address.

	examinemem [-len count] <address>`},
		{aliases: []string{"hbreak"}, group: breakCmds, cmdFn: hbreak, helpMsg: `Sets a hardware breakpoint.

	hbreak <address>`},
		{aliases: []string{"watch"}, group: breakCmds, cmdFn: watch, helpMsg: `Sets a hardware watchpoint.

	watch [-r|-w|-rw] <address> [size]

The default is a 4 byte write watchpoint.`},
		{aliases: []string{"clear"}, group: breakCmds, cmdFn: clearCmd, helpMsg: `Deletes a hardware breakpoint or watchpoint.

	clear <id>`},
		{aliases: []string{"breakpoints", "bp"}, group: breakCmds, cmdFn: breakpoints, helpMsg: `Print out info for active breakpoints, including the entry point breakpoint.`},
		{aliases: []string{"entry"}, group: breakCmds, cmdFn: entryCmd, helpMsg: `Prints the entry point breakpoint and the instruction it is placed on.`},
		{aliases: []string{"dump"}, group: otherCmds, cmdFn: dump, helpMsg: `Writes the snapshot being examined to a file as an ELF core.

	dump <output file>`},
		{aliases: []string{"source"}, group: otherCmds, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of commands or a starlark script.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script. Use "source -" to start a starlark REPL.`},
		{aliases: []string{"config"}, group: otherCmds, cmdFn: configureCmd, subcommands: append([]string{"-list", "-save", "alias"}, configNames()...), helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config substitute-path <from> <to>
	config substitute-path <from>

Adds or removes a path substitution rule.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"transcript"}, group: otherCmds, cmdFn: transcript, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of commands is appended to the specified output file. If -t is specified and the output file exists it is truncated. If -x is specified output to stdout is suppressed instead.

Using the -off option disables the transcript.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.`},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// CallWithContext takes a command and a context that command should be executed in.
func (c *Commands) CallWithContext(cmdstr string, t *Term, ctx callContext) error {
	vals := split2PartsBySpace(cmdstr)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, ctx, args)
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	return c.CallWithContext(cmdstr, t, callContext{Ctx: t.context()})
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, ctx callContext, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, ctx callContext, args string) error {
	return nil
}

func (c *Commands) help(t *Term, ctx callContext, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	err := c.byGroup(func(g commandGroup, cmds []command) error {
		fmt.Fprintf(t.stdout, "\n%v:\n", g)
		w := tabwriter.NewWriter(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range cmds {
			name := cmd.aliases[0]
			if len(cmd.aliases) > 1 {
				name += " (alias: " + strings.Join(cmd.aliases[1:], " | ") + ")"
			}
			fmt.Fprintf(w, "    %s \t %s\n", name, cmd.summary())
		}
		return w.Flush()
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

func split2PartsBySpace(s string) []string {
	v := strings.SplitN(strings.TrimSpace(s), " ", 2)
	if len(v) > 1 {
		v[1] = strings.TrimSpace(v[1])
	}
	return v
}

func infoCommand(t *Term, ctx callContext, args string) error {
	return dispatchSubcommand("info", infoSubcommands, t, ctx, args)
}

func maintCommand(t *Term, ctx callContext, args string) error {
	return dispatchSubcommand("maint", maintSubcommands, t, ctx, args)
}

func parseThreadID(s string) (int, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid thread id %q", s)
	}
	return int(n), nil
}

func infoTIB(t *Term, ctx callContext, args string) error {
	tid := 0
	if args != "" {
		var err error
		if tid, err = parseThreadID(args); err != nil {
			return err
		}
	}
	return t.sess.DisplayTIB(ctx.Ctx, t.stdout, tid)
}

func infoProc(t *Term, ctx callContext, args string) error {
	vals := split2PartsBySpace(args)
	what, err := procinfo.ParseWhat(vals[0])
	rest := ""
	if err != nil {
		// "info proc <pid>"
		what, rest = procinfo.Minimal, args
	} else if len(vals) > 1 {
		rest = vals[1]
	}
	err = t.sess.InfoProc(ctx.Ctx, t.stdout, rest, what)
	if err == procinfo.ErrNoProcess {
		fmt.Fprintln(t.stdout, err.Error())
		return nil
	}
	return err
}

func infoSharedLibrary(t *Term, ctx callContext, args string) error {
	mods, err := t.sess.Modules()
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		fmt.Fprintln(t.stdout, "No shared libraries loaded at this time.")
		return nil
	}
	t.stdout.pw.PageMaybe(nil)
	arch := t.sess.Arch()
	w := tabwriter.NewWriter(t.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Load address\tShared Object Library")
	for _, mod := range mods {
		fmt.Fprintf(w, "%s\t%s\n", arch.Paddress(mod.LoadAddress), mod.Name)
	}
	return w.Flush()
}

func infoException(t *Term, ctx callContext, args string) error {
	rec, err := t.sess.Exception()
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, rec.Description())
	fmt.Fprintln(t.stdout, rec.String())
	if sig, ok := t.sess.StopSignal(); ok {
		fmt.Fprintf(t.stdout, "Program terminated with signal %s.\n", sig)
	}
	return nil
}

func infoSignals(t *Term, ctx callContext, args string) error {
	tr := t.sess.Translator()
	fmt.Fprintf(t.stdout, "Signal numbering of the %s runtime:\n", tr.Name())
	w := tabwriter.NewWriter(t.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Signal\tNumber")
	for sig := winsignal.SIGHUP; sig < winsignal.Unknown; sig++ {
		if n, ok := tr.ToTarget(sig); ok {
			fmt.Fprintf(w, "%s\t%d\n", sig, n)
		}
	}
	return w.Flush()
}

func infoTypes(t *Term, ctx callContext, args string) error {
	for _, name := range t.sess.InternedTypes() {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "yes", "enable":
		return true, nil
	case "off", "0", "no", "disable":
		return false, nil
	}
	return false, fmt.Errorf("\"on\" or \"off\" expected")
}

func maintSetShowAllTIB(t *Term, ctx callContext, args string) error {
	on := true
	if args != "" {
		var err error
		if on, err = parseOnOff(args); err != nil {
			return err
		}
	}
	t.sess.SetShowAllTIB(on)
	t.conf.ShowAllTIB = on
	return nil
}

func maintShowShowAllTIB(t *Term, ctx callContext, args string) error {
	fmt.Fprintln(t.stdout, session.ShowAllTIBMessage(t.sess.ShowAllTIB()))
	return nil
}

func threads(t *Term, ctx callContext, args string) error {
	ths, err := t.sess.Threads(ctx.Ctx)
	if err != nil {
		return err
	}
	cur := t.sess.CurrentThread()
	for _, th := range ths {
		prefix := "  "
		if th.ID == cur {
			prefix = "* "
		}
		s := t.sess.PidToStr(th.ID)
		if th.Name != "" {
			s += fmt.Sprintf(" %q", th.Name)
		}
		if th.TEB != 0 {
			s += " TEB " + t.sess.Arch().Paddress(th.TEB)
		}
		fmt.Fprintf(t.stdout, "%s%s\n", prefix, s)
	}
	return nil
}

func thread(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("you must specify a thread")
	}
	tid, err := parseThreadID(args)
	if err != nil {
		return err
	}
	old := t.sess.CurrentThread()
	if err := t.sess.SetCurrentThread(ctx.Ctx, tid); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Switched from %s to %s\n", t.sess.PidToStr(old), t.sess.PidToStr(tid))
	return nil
}

func printVar(t *Term, ctx callContext, args string) error {
	switch args {
	case "":
		return fmt.Errorf("not enough arguments")
	case "$_tlb":
		s, err := t.sess.FormatTLB()
		if err != nil {
			return err
		}
		fmt.Fprintln(t.stdout, s)
	case "$_siginfo":
		rec, err := t.sess.Exception()
		if err != nil {
			return err
		}
		fmt.Fprintln(t.stdout, rec.String())
	default:
		n, err := strconv.ParseUint(args, 0, 64)
		if err != nil {
			return fmt.Errorf("unknown convenience variable %q", args)
		}
		fmt.Fprintf(t.stdout, "%d (%#x)\n", n, n)
	}
	return nil
}

func setVar(t *Term, ctx callContext, args string) error {
	v := strings.SplitN(args, "=", 2)
	if len(v) != 2 {
		return fmt.Errorf("wrong number of arguments: set <variable> = <value>")
	}
	name, value := strings.TrimSpace(v[0]), strings.TrimSpace(v[1])
	switch name {
	case "$_tlb":
		n, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return err
		}
		return t.sess.SetTLB(n)
	case "$_siginfo":
		return fmt.Errorf("Unable to write siginfo")
	}
	return fmt.Errorf("unknown convenience variable %q", name)
}

func ptype(t *Term, ctx callContext, args string) error {
	if args == "" {
		return fmt.Errorf("not enough arguments")
	}
	arch := t.sess.Arch()
	if !arch.Valid() {
		return procinfo.ErrNoProcess
	}
	var typ wintypes.Type
	switch args {
	case "$_tlb":
		typ = t.sess.Types().ThreadBlockType(arch)
	case "$_siginfo":
		typ = t.sess.Types().ExceptionType(arch)
	default:
		var ok bool
		typ, ok = t.sess.Types().Lookup(arch, args)
		if !ok {
			return fmt.Errorf("No symbol %q in current context.", args)
		}
	}
	fmt.Fprintf(t.stdout, "type = %s\n", describeType(typ))
	return nil
}

func describeType(typ wintypes.Type) string {
	switch typ := typ.(type) {
	case *wintypes.PtrType:
		return describeType(typ.Type) + " *"
	case *wintypes.TypedefType:
		return typ.Name
	case *wintypes.StructType:
		var sb strings.Builder
		sb.WriteString(typ.Kind)
		if typ.StructName != "" {
			sb.WriteString(" " + typ.StructName)
		}
		sb.WriteString(" {\n")
		for _, f := range typ.Field {
			fmt.Fprintf(&sb, "    /* %#05x */ %s %s;\n", f.ByteOffset, f.Type.String(), f.Name)
		}
		sb.WriteString("}")
		return sb.String()
	}
	return typ.String()
}

func parseAddress(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}

func examineMemoryCmd(t *Term, ctx callContext, args string) error {
	count := 64
	vals := strings.Fields(args)
	if len(vals) == 3 && vals[0] == "-len" {
		n, err := strconv.Atoi(vals[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("expected positive count after -len")
		}
		count = n
		vals = vals[2:]
	}
	if len(vals) != 1 {
		return fmt.Errorf("wrong number of arguments: examinemem [-len count] <address>")
	}
	addr, err := parseAddress(vals[0])
	if err != nil {
		return err
	}
	buf := make([]byte, count)
	n, err := t.sess.ReadMemory(buf, addr)
	if n == 0 {
		if err == nil {
			err = fmt.Errorf("Cannot access memory at address %#x", addr)
		}
		return err
	}
	arch := t.sess.Arch()
	for off := 0; off < n; off += 16 {
		end := off + 16
		if end > n {
			end = n
		}
		fmt.Fprintf(t.stdout, "%s:", arch.Paddress(addr+uint64(off)))
		for _, b := range buf[off:end] {
			fmt.Fprintf(t.stdout, " %02x", b)
		}
		fmt.Fprintln(t.stdout)
	}
	return nil
}

func hbreak(t *Term, ctx callContext, args string) error {
	addr, err := parseAddress(args)
	if err != nil {
		return err
	}
	loc, err := t.sess.SetHardwareBreakpoint(addr, false, false, false, 1)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Hardware breakpoint %d set at %s\n", loc.ID, t.sess.Arch().Paddress(loc.Addr))
	return nil
}

func watch(t *Term, ctx callContext, args string) error {
	vals := strings.Fields(args)
	read, write := false, true
	if len(vals) > 0 && strings.HasPrefix(vals[0], "-") {
		switch vals[0] {
		case "-r":
			read, write = true, false
		case "-w":
			read, write = false, true
		case "-rw":
			read, write = true, true
		default:
			return fmt.Errorf("wrong argument %q", vals[0])
		}
		vals = vals[1:]
	}
	if len(vals) < 1 || len(vals) > 2 {
		return fmt.Errorf("wrong number of arguments: watch [-r|-w|-rw] <address> [size]")
	}
	addr, err := parseAddress(vals[0])
	if err != nil {
		return err
	}
	size := 4
	if len(vals) == 2 {
		if size, err = strconv.Atoi(vals[1]); err != nil {
			return fmt.Errorf("invalid size %q", vals[1])
		}
	}
	loc, err := t.sess.SetHardwareBreakpoint(addr, true, read, write, size)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Watchpoint %s\n", loc)
	return nil
}

func clearCmd(t *Term, ctx callContext, args string) error {
	id, err := strconv.Atoi(args)
	if err != nil {
		return fmt.Errorf("invalid breakpoint id %q", args)
	}
	if err := t.sess.ClearHardwareBreakpoint(id); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Breakpoint %d cleared\n", id)
	return nil
}

func breakpoints(t *Term, ctx callContext, args string) error {
	if bp := t.sess.EntryBreakpoint(); bp != nil {
		fmt.Fprintf(t.stdout, "Entry point breakpoint at %s (hit %d times)\n", t.sess.Arch().Paddress(bp.Address()), bp.Hits())
	}
	for _, loc := range t.sess.HardwareBreakpoints().Locations() {
		fmt.Fprintf(t.stdout, "%s\n", loc)
	}
	return nil
}

func entryCmd(t *Term, ctx callContext, args string) error {
	bp := t.sess.EntryBreakpoint()
	if bp == nil {
		return fmt.Errorf("no entry point breakpoint")
	}
	arch := t.sess.Arch()
	fmt.Fprintf(t.stdout, "Entry point breakpoint at %s\n", arch.Paddress(bp.Address()))
	desc, err := t.sess.DescribeEntryPoint()
	if err != nil {
		fmt.Fprintf(t.stdout, "\t<%v>\n", err)
		return nil
	}
	fmt.Fprintf(t.stdout, "=>\t%s\t%s\n", arch.Paddress(bp.Address()), desc)
	return nil
}

func dump(t *Term, ctx callContext, args string) error {
	if args == "" {
		return errors.New("not enough arguments")
	}
	if err := t.sess.Dump(args); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Snapshot written to %s\n", args)
	return nil
}

func (c *Commands) sourceCommand(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}
	v, err := argv.Argv(args, func(s string) (string, error) {
		return "", fmt.Errorf("Backtick not supported in '%s'", s)
	}, nil)
	if err != nil {
		return err
	}
	if len(v) != 1 || len(v[0]) != 1 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}
	path := v[0][0]

	if path == "-" {
		return t.starlarkEnv.REPL()
	}

	if filepath.Ext(path) == ".star" {
		_, err := t.starlarkEnv.Execute(path, nil, "main", nil)
		return err
	}

	return c.executeFile(t, path)
}

func transcript(t *Term, ctx callContext, args string) error {
	words := strings.Fields(args)
	truncate := false
	fileOnly := false
	disable := false
	path := ""
	for _, arg := range words {
		switch arg {
		case "-x":
			fileOnly = true
		case "-t":
			truncate = true
		case "-off":
			disable = true
		default:
			if path != "" || strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unrecognized option %q", arg)
			} else {
				path = arg
			}
		}
	}

	if disable {
		if path != "" {
			return errors.New("-o option specified with an output path")
		}
		return t.stdout.CloseTranscript()
	}

	if path == "" {
		return errors.New("no output path specified")
	}

	flags := os.O_APPEND | os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	fh, err := os.OpenFile(path, flags, 0660)
	if err != nil {
		return err
	}

	if err := t.stdout.CloseTranscript(); err != nil {
		return err
	}

	t.stdout.TranscribeTo(fh, fileOnly)
	return nil
}

// ExitRequestError is returned when the user
// exits wincore.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, ctx callContext, args string) error {
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
