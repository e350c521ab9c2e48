package dap

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"text/tabwriter"

	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/session"
	"github.com/go-delve/wincore/pkg/winarch"
)

// Config is the configuration of a DAP server.
type Config struct {
	// Listener is the listener the client connects to. The server takes
	// ownership of it.
	Listener net.Listener

	// DisconnectChan is closed by the server when the client disconnects.
	DisconnectChan chan<- struct{}

	// Wincore is the configuration each debug session starts from.
	Wincore *config.Config

	// Attach opens the live process pid. When it is nil attach requests
	// fail.
	Attach func(pid int) (session.Process, winarch.Arch, error)
}

// launchAttachArgs captures arguments from launch/attach request that
// impact handling of subsequent requests.
type launchAttachArgs struct {
	// stopOnEntry is set to report a stop after configurationDone even
	// when the snapshot records no exception.
	stopOnEntry bool
	// showAllTIB is set to list the non-zero unnamed slots of the thread
	// information block in the variables pane.
	showAllTIB bool
}

var defaultArgs = launchAttachArgs{}

// boolArg is a launch/attach argument that can be changed from the debug
// console with 'wincore config'.
type boolArg struct {
	name string
	// invalidates is set when changing the argument changes what the
	// variables pane shows.
	invalidates bool
	field       func(*launchAttachArgs) *bool
}

var boolArgs = []boolArg{
	{"stopOnEntry", false, func(a *launchAttachArgs) *bool { return &a.stopOnEntry }},
	{"showAllTIB", true, func(a *launchAttachArgs) *bool { return &a.showAllTIB }},
}

func listConfig(args *launchAttachArgs) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 1, ' ', 0)
	for _, a := range boolArgs {
		fmt.Fprintf(w, "%s\t%v\n", a.name, *a.field(args))
	}
	w.Flush()
	return buf.String()
}

// configureSet shows or changes one argument. The returned bool reports
// whether the variables pane has to be refreshed.
func configureSet(sargs *launchAttachArgs, args string) (bool, string, error) {
	name, value, _ := strings.Cut(strings.TrimSpace(args), " ")
	value = strings.TrimSpace(value)

	var arg *boolArg
	for i := range boolArgs {
		if boolArgs[i].name == name {
			arg = &boolArgs[i]
		}
	}
	if arg == nil {
		return false, "", fmt.Errorf("%q is not a configuration parameter", name)
	}
	field := arg.field(sargs)
	if value == "" {
		return false, fmt.Sprintf("%s\t%v\n", name, *field), nil
	}
	switch value {
	case "true", "on":
		*field = true
	case "false", "off":
		*field = false
	default:
		return false, "", fmt.Errorf("argument to %q must be true or false", name)
	}
	return arg.invalidates, fmt.Sprintf("%s\t%v\nUpdated", name, *field), nil
}
