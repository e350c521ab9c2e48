package logflags

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strconv"
	"strings"
)

// layer is one selectable --log-output value.
type layer struct {
	on     bool
	fields Fields
}

func (l *layer) logger() Logger { return newLogger(l.on, l.fields) }

var (
	session  = &layer{fields: Fields{"layer": "session"}}
	snapshot = &layer{fields: Fields{"layer": "core", "kind": "snapshot"}}
	solib    = &layer{fields: Fields{"layer": "core", "kind": "solib"}}
	procinfo = &layer{fields: Fields{"layer": "proc", "kind": "procinfo"}}
	peimport = &layer{fields: Fields{"layer": "bininfo", "kind": "peimport"}}
	dap      = &layer{fields: Fields{"layer": "dap"}}
	entrybp  = &layer{fields: Fields{"layer": "proc", "kind": "entrybp"}}
)

// layers maps --log-output names to layers. "minidump" is an alias kept
// for users of older releases.
var layers = map[string]*layer{
	"session":  session,
	"snapshot": snapshot,
	"minidump": snapshot,
	"solib":    solib,
	"procinfo": procinfo,
	"peimport": peimport,
	"dap":      dap,
	"entrybp":  entrybp,
}

var logOut io.WriteCloser

// Session returns true if the session layer should log.
func Session() bool { return session.on }

// SessionLogger returns a logger for the session layer.
func SessionLogger() Logger { return session.logger() }

// Snapshot returns true if the snapshot loaders (minidump and ELF) should
// log what they find.
func Snapshot() bool { return snapshot.on }

// SnapshotLogger returns a logger for the snapshot loaders.
func SnapshotLogger() Logger { return snapshot.logger() }

// Solib returns true if module enumeration should be logged.
func Solib() bool { return solib.on }

func SolibLogger() Logger { return solib.logger() }

// Procinfo returns true if reads of the live process blocks should be logged.
func Procinfo() bool { return procinfo.on }

func ProcinfoLogger() Logger { return procinfo.logger() }

// PEImport returns true if the import directory scanner should log.
func PEImport() bool { return peimport.on }

func PEImportLogger() Logger { return peimport.logger() }

// DAP returns true if every message exchanged with a DAP client should be
// logged.
func DAP() bool { return dap.on }

func DAPLogger() Logger { return dap.logger() }

// EntryBP returns true if the entry point breakpoint should log.
func EntryBP() bool { return entrybp.on }

func EntryBPLogger() Logger { return entrybp.logger() }

// WriteDAPListeningMessage tells whoever started the server where to
// connect.
func WriteDAPListeningMessage(addr string) {
	fmt.Fprintf(os.Stdout, "DAP server listening at: %s\n", addr)
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup enables the layers named in the comma separated logstr. When
// logDest is a number it is used as a file descriptor, otherwise it is
// created as a file.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		out, err := openDest(logDest)
		if err != nil {
			return err
		}
		logOut = out
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "session"
	}
	for _, name := range strings.Split(logstr, ",") {
		l, ok := layers[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'wincore help log' for usage.\n", name)
			continue
		}
		l.on = true
	}
	return nil
}

func openDest(dest string) (io.WriteCloser, error) {
	if fd, err := strconv.Atoi(dest); err == nil {
		return os.NewFile(uintptr(fd), "wincore-logs"), nil
	}
	fh, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("could not create log file: %v", err)
	}
	return fh, nil
}

// Close closes the log destination opened by Setup, if any.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}
