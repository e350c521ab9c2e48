package dap

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/go-dap"

	"github.com/go-delve/wincore/pkg/procinfo"
)

var errNoCmd = errors.New("command not available")

// consoleCommand is a command typed in the debug console after the
// "wincore " prefix. run receives the thread of the selected frame.
type consoleCommand struct {
	names []string
	help  string
	run   func(tid int, args string) (string, error)
}

func (s *Server) consoleCommands() []consoleCommand {
	return []consoleCommand{
		{[]string{"help", "h"}, `Prints the help message.

help [command]

Type "help" followed by the name of a command for more information about it.`, s.helpMessage},

		{[]string{"config"}, `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config <parameter> [<value>]

Show or change the value of a configuration parameter.`, s.evaluateConfig},

		{[]string{"tib"}, `Prints the thread information block of a thread.

	tib [thread]

Without an argument the thread of the selected stack frame is used.`, s.evaluateTIB},

		{[]string{"proc"}, `Prints the command line, working directory and executable of the process.

	proc [cmdline|cwd|exe|all]`, s.evaluateProc},

		{[]string{"libraries", "sharedlibrary"}, `Prints the library list of the snapshot.`, func(int, string) (string, error) {
			return s.sess.LibraryList()
		}},
	}
}

func (s *Server) findConsoleCommand(name string) (consoleCommand, bool) {
	for _, cmd := range s.consoleCommands() {
		for _, n := range cmd.names {
			if n == name {
				return cmd, true
			}
		}
	}
	return consoleCommand{}, false
}

func (s *Server) wincoreCmd(tid int, cmdstr string) (string, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(cmdstr), " ")
	cmd, ok := s.findConsoleCommand(name)
	if !ok {
		return "", errNoCmd
	}
	return cmd.run(tid, strings.TrimSpace(args))
}

func (s *Server) helpMessage(_ int, args string) (string, error) {
	if args != "" {
		cmd, ok := s.findConsoleCommand(args)
		if !ok {
			return "", errNoCmd
		}
		return cmd.help, nil
	}
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "The following commands are available:")
	w := tabwriter.NewWriter(&buf, 0, 8, 1, ' ', 0)
	for _, cmd := range s.consoleCommands() {
		name := cmd.names[0]
		if len(cmd.names) > 1 {
			name += " (alias: " + strings.Join(cmd.names[1:], " | ") + ")"
		}
		summary, _, _ := strings.Cut(cmd.help, "\n")
		fmt.Fprintf(w, "    %s\t%s\n", name, summary)
	}
	w.Flush()
	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "Type help followed by a command for full documentation.")
	return buf.String(), nil
}

func (s *Server) evaluateConfig(_ int, expr string) (string, error) {
	if expr == "-list" {
		return listConfig(&s.args), nil
	}
	invalidate, res, err := configureSet(&s.args, expr)
	if err != nil || !invalidate {
		return res, err
	}
	s.sess.SetShowAllTIB(s.args.showAllTIB)
	s.variableHandles.reset()
	s.send(&dap.InvalidatedEvent{
		Event: *newEvent("invalidated"),
		Body:  dap.InvalidatedEventBody{Areas: []dap.InvalidatedAreas{"variables"}},
	})
	return res, nil
}

func (s *Server) evaluateTIB(tid int, args string) (string, error) {
	if args != "" {
		n, err := strconv.ParseInt(args, 0, 64)
		if err != nil {
			return "", fmt.Errorf("invalid thread id %q", args)
		}
		tid = int(n)
	}
	var buf bytes.Buffer
	err := s.sess.DisplayTIB(s.ctx, &buf, tid)
	return buf.String(), err
}

func (s *Server) evaluateProc(_ int, args string) (string, error) {
	what, err := procinfo.ParseWhat(args)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := s.sess.InfoProc(s.ctx, &buf, "", what); err != nil {
		return "", err
	}
	return buf.String(), nil
}
