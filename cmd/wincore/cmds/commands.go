package cmds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-delve/wincore/cmd/wincore/cmds/helphelpers"
	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/peimport"
	"github.com/go-delve/wincore/pkg/procinfo/native"
	"github.com/go-delve/wincore/pkg/session"
	"github.com/go-delve/wincore/pkg/terminal"
	"github.com/go-delve/wincore/pkg/tls"
	"github.com/go-delve/wincore/pkg/version"
	"github.com/go-delve/wincore/pkg/winarch"
	"github.com/go-delve/wincore/service/dap"
	"github.com/spf13/cobra"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// addr is the DAP server listen address.
	addr string
	// initFile is the path to initialization file.
	initFile string
	// showAllTIB overrides the show-all-tib configuration option.
	showAllTIB bool
	// symbolPath is added to the directories searched for the modules
	// named in a snapshot.
	symbolPath []string

	// dapTLS secures the DAP listener.
	dapTLS tls.ListenerConfig

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const wincoreCommandLongDesc = `Wincore examines Windows processes and their snapshots.

Wincore opens Windows minidumps and ELF core files of Windows processes, or
attaches to a live process, and shows the state of the threads: the thread
information block, the exception that stopped the process, the loaded modules
and the command line of the process.

It can be used from its own command line or from an editor through the
Debug Adapter Protocol (see 'wincore dap').`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main wincore root command.
	rootCommand = &cobra.Command{
		Use:   "wincore",
		Short: "Wincore examines Windows processes and their snapshots.",
		Long:  wincoreCommandLongDesc,
	}

	rootCommand.PersistentFlags().StringVarP(&addr, "listen", "l", "127.0.0.1:0", "DAP server listen address.")

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'wincore help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'wincore help log').")

	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.PersistentFlags().BoolVar(&showAllTIB, "show-all-tib", false, "Show all non-zero elements of the thread information block.")
	rootCommand.PersistentFlags().StringSliceVar(&symbolPath, "symbol-path", nil, "Directories searched for the modules named in a snapshot.")

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach pid",
		Short: "Attach to a running Windows process.",
		Long: `Attach to an already running process and examine it.

The process is not suspended: the thread information blocks and the process
parameters are read while it runs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a PID")
			}
			return nil
		},
		Run: attachCmd,
	}
	rootCommand.AddCommand(attachCommand)

	// 'core' subcommand.
	coreCommand := &cobra.Command{
		Use:   "core <snapshot> [executable]",
		Short: "Examine a minidump or a core dump.",
		Long: `Examine a minidump or a core dump.

The core command will open the specified snapshot, a Windows minidump or an
ELF core file of a Windows process, and let you examine the state of the
process when the snapshot was taken. If the executable is given its PE
headers are used to compute the ASLR relocation of the main module.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return errors.New("you must provide a snapshot and optionally an executable")
			}
			return nil
		},
		Run: coreCmd,
	}
	rootCommand.AddCommand(coreCommand)

	// 'dap' subcommand.
	dapCommand := &cobra.Command{
		Use:   "dap",
		Short: "Starts a TCP server communicating via Debug Adaptor Protocol (DAP).",
		Long: `Starts a TCP server communicating via Debug Adaptor Protocol (DAP).

The server opens a snapshot via a launch request with 'mode' set to 'core' and
'coreFilePath' set to the snapshot, or attaches to a running process via an
attach request with 'processId' set.
Each thread is reported with a single stack frame whose only scope is the
thread information block.
Typing "wincore help" in the debug console lists the commands available there.
The server does not accept multiple client connections.`,
		Run: dapCmd,
	}
	dapCommand.Flags().StringVar(&dapTLS.CertFile, "tls-cert", "", "PEM certificate the DAP server presents to clients.")
	dapCommand.Flags().StringVar(&dapTLS.KeyFile, "tls-key", "", "PEM private key of the --tls-cert certificate.")
	dapCommand.Flags().StringVar(&dapTLS.ClientCAFile, "tls-client-ca", "", "PEM certificates of the CAs client certificates must be signed by.")
	rootCommand.AddCommand(dapCommand)

	// 'deps' subcommand.
	depsCommand := &cobra.Command{
		Use:   "deps <executable> [library]",
		Short: "Lists the libraries a PE file imports from.",
		Long: `Lists the libraries a PE file imports from.

With a library argument reports whether the PE file imports from that
library. Library names are compared exactly as they appear in the import
table.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return errors.New("you must provide a PE file and optionally a library name")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(deps(os.Stdout, args))
		},
	}
	rootCommand.AddCommand(depsCommand)

	// 'dump' subcommand.
	dumpCommand := &cobra.Command{
		Use:   "dump <snapshot> <output>",
		Short: "Converts a snapshot to an ELF core file.",
		Long: `Converts a snapshot to an ELF core file.

The snapshot, a Windows minidump or an ELF core file, is written to output
as an ELF core file whose notes record every section of the snapshot.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("you must provide a snapshot and an output file")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(dump(os.Stdout, args[0], args[1]))
		},
	}
	rootCommand.AddCommand(dumpCommand)

	// 'version' subcommand.
	var versionVerbose = false
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Wincore\n%s\n", version.WincoreVersion)
			if versionVerbose {
				fmt.Printf("Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	session		Log session setup and thread selection
	snapshot	Log minidump and ELF core loading (alias: minidump)
	solib		Log module name resolution
	procinfo	Log reads of the process parameters
	peimport	Log PE import table scans
	dap		Log all DAP messages
	entrybp		Log entry point breakpoints

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
This option will also redirect the "DAP server listening at" message.

`,
	})

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if !docCall {
			helphelpers.Prepare(cmd)
		}
		defaultHelp(cmd, args)
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// sessionConfig returns the configuration loaded from the configuration
// file with the command line flags applied.
func sessionConfig() *config.Config {
	c := *conf
	if showAllTIB {
		c.ShowAllTIB = true
	}
	if len(symbolPath) > 0 {
		c.SymbolPath = append(append([]string(nil), symbolPath...), c.SymbolPath...)
	}
	return &c
}

func warnStderr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func dapCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		if initFile != "" {
			fmt.Fprint(os.Stderr, "Warning: init file ignored with dap\n")
		}
		if len(args) > 0 {
			fmt.Fprintf(os.Stderr, "Warning: arguments ignored with dap; specify via launch/attach request instead\n")
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			fmt.Printf("couldn't start listener: %s\n", err)
			return 1
		}
		listener, err = tls.WrapListener(listener, dapTLS)
		if err != nil {
			fmt.Fprintf(os.Stderr, "couldn't secure listener: %s\n", err)
			return 1
		}
		disconnectChan := make(chan struct{})
		server := dap.NewServer(&dap.Config{
			Listener:       listener,
			DisconnectChan: disconnectChan,
			Wincore:        sessionConfig(),
			Attach:         attachNative,
		})
		defer server.Stop()

		server.Run()
		waitForDisconnectSignal(disconnectChan)
		return 0
	}()
	os.Exit(status)
}

// attachNative opens the live process pid on the host.
func attachNative(pid int) (session.Process, winarch.Arch, error) {
	p, err := native.Attach(pid)
	if err != nil {
		return nil, winarch.Arch{}, err
	}
	return p, native.HostArch(), nil
}

func attachCmd(cmd *cobra.Command, args []string) {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pid: %s\n", args[0])
		os.Exit(1)
	}
	os.Exit(execute(func(ctx context.Context, sess *session.Session) (session.HookResult, error) {
		p, arch, err := attachNative(pid)
		if err != nil {
			return session.HookResult{}, err
		}
		res, err := sess.Attach(ctx, p, arch)
		if err != nil {
			p.Close()
		}
		return res, err
	}))
}

func coreCmd(cmd *cobra.Command, args []string) {
	os.Exit(execute(func(ctx context.Context, sess *session.Session) (session.HookResult, error) {
		if len(args) > 1 {
			if err := sess.LoadExecutable(args[1]); err != nil {
				return session.HookResult{}, err
			}
		}
		return sess.OpenSnapshot(ctx, args[0])
	}))
}

// waitForDisconnectSignal is a blocking function that waits for either
// a SIGINT (Ctrl-C) signal from the OS or for disconnectChan to be closed
// by the server when the client disconnects.
func waitForDisconnectSignal(disconnectChan chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	select {
	case <-ch:
	case <-disconnectChan:
	}
}

type openFunc func(ctx context.Context, sess *session.Session) (session.HookResult, error)

func execute(open openFunc) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	c := sessionConfig()
	var term *terminal.Term
	sess := session.New(c, func(format string, args ...interface{}) {
		if term != nil {
			term.Warnf(format, args...)
			return
		}
		warnStderr(format, args...)
	})
	defer sess.Close()

	res, err := open(context.Background(), sess)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if res.Rebased {
		fmt.Printf("Executable relocated to %s\n", sess.Arch().Paddress(res.ExecBase))
	}
	if res.BreakpointCreated {
		fmt.Printf("Entry point breakpoint at %s\n", sess.Arch().Paddress(res.EntryPoint))
	}

	term = terminal.New(sess, c)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}

func deps(w io.Writer, args []string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	if len(args) > 1 {
		found, err := peimport.DependsOnFile(args[0], args[1], warnStderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if found {
			fmt.Fprintf(w, "%s imports from %s\n", args[0], args[1])
		} else {
			fmt.Fprintf(w, "%s does not import from %s\n", args[0], args[1])
		}
		return 0
	}

	f, err := peimport.Open(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer f.Close()
	for _, name := range peimport.Imports(f, warnStderr) {
		fmt.Fprintln(w, name)
	}
	return 0
}

func dump(w io.Writer, in, out string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	sess := session.New(sessionConfig(), warnStderr)
	if _, err := sess.OpenSnapshot(context.Background(), in); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := sess.Dump(out); err != nil {
		fmt.Fprintf(os.Stderr, "could not write %s: %v\n", out, err)
		return 1
	}
	snap := sess.Snapshot()
	fmt.Fprintf(w, "Wrote %s: process %d, %d threads, %d sections\n", out, snap.Pid, len(snap.Threads()), len(snap.Sections()))
	return 0
}
