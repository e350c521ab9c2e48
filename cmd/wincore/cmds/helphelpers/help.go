// Package helphelpers trims the flags shown in the help of each wincore
// subcommand.
package helphelpers

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// allFlags hides every flag of a command.
const allFlags = "*"

// irrelevant lists, per command, the persistent flags of the root command
// that the command accepts but ignores.
var irrelevant = map[string][]string{
	"wincore": {allFlags},
	"help":    {allFlags},
	"version": {allFlags},
	"log":     {allFlags},
	"core":    {"listen"},
	"attach":  {"listen"},
	"dap":     {"init"},
	"deps":    {"init", "listen", "show-all-tib"},
	"dump":    {"init", "listen", "show-all-tib"},
}

// Prepare marks the flags cmd ignores as hidden before its usage is
// printed. The flags stay defined on the root command so that
//
//	wincore --listen=:4000 core app.dmp
//
// still parses. Hiding is permanent, cmd must not be used to parse a
// command line afterwards.
func Prepare(cmd *cobra.Command) {
	for _, name := range irrelevant[cmd.Name()] {
		if name == allFlags {
			hide := func(f *pflag.Flag) { f.Hidden = true }
			cmd.PersistentFlags().VisitAll(hide)
			cmd.Flags().VisitAll(hide)
			continue
		}
		if f := lookup(cmd, name); f != nil {
			f.Hidden = true
		}
	}
}

// lookup finds a flag on cmd or the closest ancestor that defines it.
func lookup(cmd *cobra.Command, name string) *pflag.Flag {
	for ; cmd != nil; cmd = cmd.Parent() {
		if f := cmd.Flags().Lookup(name); f != nil {
			return f
		}
		if f := cmd.PersistentFlags().Lookup(name); f != nil {
			return f
		}
	}
	return nil
}
