package dap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-delve/wincore/pkg/config"
)

// LaunchMode selects what a launch request opens.
type LaunchMode string

// CoreLaunchMode examines a minidump or an ELF core snapshot of a Windows
// process. It is the default.
const CoreLaunchMode LaunchMode = "core"

// AttachMode selects what an attach request connects to.
type AttachMode string

// LocalAttachMode attaches to a process running on the same machine. It
// is the default.
const LocalAttachMode AttachMode = "local"

// LaunchConfig holds the attributes of a launch request.
type LaunchConfig struct {
	Mode LaunchMode `json:"mode,omitempty"`

	// CoreFilePath is the snapshot to examine. Relative paths are resolved
	// against the working directory of the server.
	CoreFilePath string `json:"coreFilePath,omitempty"`

	// Program is the executable of the process that produced the
	// snapshot. When it is empty the executable is looked up in the symbol
	// path using the name recorded in the snapshot.
	Program string `json:"program,omitempty"`

	LaunchAttachCommonConfig
}

func (c *LaunchConfig) validate() error {
	switch c.Mode {
	case "":
		c.Mode = CoreLaunchMode
	case CoreLaunchMode:
	default:
		return fmt.Errorf("invalid debug configuration - unsupported 'mode' attribute %q", c.Mode)
	}
	if c.CoreFilePath == "" {
		return errors.New("The 'coreFilePath' attribute is missing in debug configuration.")
	}
	return nil
}

// AttachConfig holds the attributes of an attach request.
type AttachConfig struct {
	Mode AttachMode `json:"mode,omitempty"`

	// ProcessID is the process to attach to, it must not be zero.
	ProcessID int `json:"processId,omitempty"`

	LaunchAttachCommonConfig
}

func (c *AttachConfig) validate() error {
	switch c.Mode {
	case "":
		c.Mode = LocalAttachMode
	case LocalAttachMode:
	default:
		return fmt.Errorf("invalid debug configuration - unsupported 'mode' attribute %q", c.Mode)
	}
	if c.ProcessID == 0 {
		return errors.New("The 'processId' attribute is missing in debug configuration")
	}
	return nil
}

// LaunchAttachCommonConfig holds the attributes shared by launch and
// attach requests.
type LaunchAttachCommonConfig struct {
	// StopOnEntry reports a stop after configurationDone even when the
	// target has no exception to report.
	StopOnEntry bool `json:"stopOnEntry,omitempty"`

	// ShowAllTIB lists the non-zero unnamed slots of the thread
	// information block in the variables pane.
	ShowAllTIB bool `json:"showAllTIB,omitempty"`

	// SymbolPath is searched for the modules named in a snapshot.
	SymbolPath []string `json:"symbolPath,omitempty"`

	// SubstitutePath rewrites the module paths recorded in the snapshot
	// to local paths.
	SubstitutePath []SubstitutePath `json:"substitutePath,omitempty"`
}

// apply copies the attributes that are also configuration options to conf.
func (c *LaunchAttachCommonConfig) apply(conf *config.Config) {
	conf.ShowAllTIB = conf.ShowAllTIB || c.ShowAllTIB
	if len(c.SymbolPath) > 0 {
		conf.SymbolPath = append([]string(nil), c.SymbolPath...)
	}
	for _, sp := range c.SubstitutePath {
		conf.SubstitutePath = append(conf.SubstitutePath, config.SubstitutePathRule(sp))
	}
}

// SubstitutePath maps a path recorded in the snapshot (From) to a local
// path (To). Both must be non-empty.
type SubstitutePath struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

const substitutePathType = `{"from":string, "to":string}`

func (m *SubstitutePath) UnmarshalJSON(data []byte) error {
	var raw struct{ From, To string }
	if err := json.Unmarshal(data, &raw); err != nil {
		var terr *json.UnmarshalTypeError
		if errors.As(err, &terr) {
			return fmt.Errorf("cannot use %s as 'substitutePath' of type %s", data, substitutePathType)
		}
		return err
	}
	if raw.From == "" || raw.To == "" {
		return errors.New("'substitutePath' requires both 'from' and 'to' entries")
	}
	*m = SubstitutePath(raw)
	return nil
}

// unmarshalLaunchAttachArgs decodes the arguments of a launch or attach
// request into cfg. Type errors name the offending attribute the way it
// is spelled in launch.json.
func unmarshalLaunchAttachArgs(input json.RawMessage, cfg interface{}) error {
	if len(input) == 0 {
		return nil
	}
	err := json.Unmarshal(input, cfg)
	var terr *json.UnmarshalTypeError
	if !errors.As(err, &terr) {
		return err
	}
	typ := terr.Type.String()
	switch terr.Field {
	case "substitutePath":
		typ = substitutePathType
	case "mode":
		typ = "string"
	}
	return fmt.Errorf("cannot unmarshal %v into %q of type %v", terr.Value, terr.Field, typ)
}
