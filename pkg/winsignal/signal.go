// Package winsignal translates between debugger signals and the signal
// numbers used by Windows programs, which differ between the MinGW
// runtimes and Cygwin.
package winsignal

import "fmt"

// Signal is a target independent signal.
type Signal int

// Target independent signals.
const (
	Signal0 Signal = iota
	SIGHUP
	SIGINT
	SIGQUIT
	SIGILL
	SIGTRAP
	SIGABRT
	SIGEMT
	SIGFPE
	SIGKILL
	SIGBUS
	SIGSEGV
	SIGSYS
	SIGPIPE
	SIGALRM
	SIGTERM
	SIGURG
	SIGSTOP
	SIGTSTP
	SIGCONT
	SIGCHLD
	SIGTTIN
	SIGTTOU
	SIGIO
	SIGXCPU
	SIGXFSZ
	SIGVTALRM
	SIGPROF
	SIGWINCH
	SIGLOST
	SIGUSR1
	SIGUSR2
	SIGPWR
	SIGPOLL
	SIGPRIO
	SIGINFO
	Unknown
)

var signalNames = [...]string{
	"0", "SIGHUP", "SIGINT", "SIGQUIT", "SIGILL", "SIGTRAP", "SIGABRT", "SIGEMT",
	"SIGFPE", "SIGKILL", "SIGBUS", "SIGSEGV", "SIGSYS", "SIGPIPE", "SIGALRM", "SIGTERM",
	"SIGURG", "SIGSTOP", "SIGTSTP", "SIGCONT", "SIGCHLD", "SIGTTIN", "SIGTTOU", "SIGIO",
	"SIGXCPU", "SIGXFSZ", "SIGVTALRM", "SIGPROF", "SIGWINCH", "SIGLOST", "SIGUSR1", "SIGUSR2",
	"SIGPWR", "SIGPOLL", "SIGPRIO", "SIGINFO", "?",
}

func (s Signal) String() string {
	if s >= 0 && int(s) < len(signalNames) {
		return signalNames[s]
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// ByName returns the signal called name, with or without the SIG prefix.
func ByName(name string) (Signal, bool) {
	for i, n := range signalNames[:Unknown] {
		if n == name || "SIG"+name == n {
			return Signal(i), true
		}
	}
	return Unknown, false
}

// Translator converts signals to and from the numbering of a target
// runtime.
type Translator interface {
	// Name returns the name of the runtime.
	Name() string
	// ToTarget returns the target number of sig. The second return value
	// is false if the runtime has no such signal.
	ToTarget(sig Signal) (int, bool)
	// FromTarget converts a Windows exception code into a signal.
	FromTarget(code uint32) Signal
}

type table struct {
	name string
	m    map[Signal]int
}

func (t *table) Name() string { return t.name }

func (t *table) ToTarget(sig Signal) (int, bool) {
	n, ok := t.m[sig]
	return n, ok
}

func (t *table) FromTarget(code uint32) Signal {
	return FromTarget(code)
}

// Windows signal numbers. The ones not defined by mingw.org's runtime come
// from MinGW-w64.
const (
	windowsSIGHUP  = 1
	windowsSIGINT  = 2
	windowsSIGQUIT = 3
	windowsSIGILL  = 4
	windowsSIGTRAP = 5
	windowsSIGEMT  = 7
	windowsSIGFPE  = 8
	windowsSIGKILL = 9
	windowsSIGBUS  = 10
	windowsSIGSEGV = 11
	windowsSIGSYS  = 12
	windowsSIGPIPE = 13
	windowsSIGALRM = 14
	windowsSIGTERM = 15
	windowsSIGABRT = 22
)

var windowsTable = &table{
	name: "windows",
	m: map[Signal]int{
		Signal0: 0,
		SIGHUP:  windowsSIGHUP,
		SIGINT:  windowsSIGINT,
		SIGQUIT: windowsSIGQUIT,
		SIGILL:  windowsSIGILL,
		SIGTRAP: windowsSIGTRAP,
		SIGABRT: windowsSIGABRT,
		SIGEMT:  windowsSIGEMT,
		SIGFPE:  windowsSIGFPE,
		SIGKILL: windowsSIGKILL,
		SIGBUS:  windowsSIGBUS,
		SIGSEGV: windowsSIGSEGV,
		SIGSYS:  windowsSIGSYS,
		SIGPIPE: windowsSIGPIPE,
		SIGALRM: windowsSIGALRM,
		SIGTERM: windowsSIGTERM,
	},
}

var cygwinTable = &table{
	name: "cygwin",
	m: map[Signal]int{
		Signal0:   0,
		SIGHUP:    1,
		SIGINT:    2,
		SIGQUIT:   3,
		SIGILL:    4,
		SIGTRAP:   5,
		SIGABRT:   6,
		SIGEMT:    7,
		SIGFPE:    8,
		SIGKILL:   9,
		SIGBUS:    10,
		SIGSEGV:   11,
		SIGSYS:    12,
		SIGPIPE:   13,
		SIGALRM:   14,
		SIGTERM:   15,
		SIGURG:    16,
		SIGSTOP:   17,
		SIGTSTP:   18,
		SIGCONT:   19,
		SIGCHLD:   20,
		SIGTTIN:   21,
		SIGTTOU:   22,
		SIGIO:     23,
		SIGXCPU:   24,
		SIGXFSZ:   25,
		SIGVTALRM: 26,
		SIGPROF:   27,
		SIGWINCH:  28,
		SIGPWR:    29, // SIGLOST
		SIGUSR1:   30,
		SIGUSR2:   31,
	},
}

// Windows returns the translator for programs using a MinGW runtime.
func Windows() Translator { return windowsTable }

// Cygwin returns the translator for programs linked with the Cygwin DLL.
func Cygwin() Translator { return cygwinTable }

// ForBinary picks the translator for an executable.
func ForBinary(linkedWithCygwin bool) Translator {
	if linkedWithCygwin {
		return cygwinTable
	}
	return windowsTable
}

// FromTarget converts a Windows exception code into a signal.
func FromTarget(code uint32) Signal {
	switch code {
	case 0:
		return Signal0
	case 0xC0000005, // EXCEPTION_ACCESS_VIOLATION
		0xC00000FD: // STATUS_STACK_OVERFLOW
		return SIGSEGV
	case 0xC000008C, 0xC000008D, 0xC000008E, 0xC000008F, 0xC0000090,
		0xC0000091, 0xC0000092, 0xC0000093, 0xC0000094, 0xC0000095:
		return SIGFPE
	case 0x80000003, // EXCEPTION_BREAKPOINT
		0x80000004: // EXCEPTION_SINGLE_STEP
		return SIGTRAP
	case 0x40010005, // DBG_CONTROL_C
		0x40010008: // DBG_CONTROL_BREAK
		return SIGINT
	case 0xC000001D, // EXCEPTION_ILLEGAL_INSTRUCTION
		0xC0000096, // EXCEPTION_PRIV_INSTRUCTION
		0xC0000025: // EXCEPTION_NONCONTINUABLE_EXCEPTION
		return SIGILL
	case 0x40000015: // FATAL_APP_EXIT
		return SIGABRT
	}
	return Unknown
}
