package elfwriter

import (
	"bytes"
	"errors"
)

// Note types used in core files written by wincore.
const (
	// WincoreHeaderNoteType describes the architecture and process id.
	WincoreHeaderNoteType = 0x57494e48 // WINH
	// WincoreSectionNoteType carries a named snapshot section: the name,
	// a NUL byte and the contents of the section.
	WincoreSectionNoteType = 0x57494e43 // WINC
	// WincoreThreadNoteType carries a thread id (8 bytes) followed by the
	// address of its thread information block (8 bytes).
	WincoreThreadNoteType = 0x57494e54 // WINT

	// WincoreNoteName is the owner of wincore notes.
	WincoreNoteName = "WINCORE"

	WincoreHeaderArchPrefix            = "Arch: "
	WincoreHeaderPidPrefix             = "Target Pid: "
	WincoreHeaderExceptionThreadPrefix = "Exception Thread: "
)

// Notes written by the Cygwin dumper.
const (
	// Win32PStatusNoteType is NT_WIN32PSTATUS.
	Win32PStatusNoteType = 18
	// Win32NoteName is the owner of Cygwin notes.
	Win32NoteName = "win32"

	// Kinds of win32pstatus notes, stored in the first four bytes of the
	// descriptor.
	Win32NoteInfoProcess  = 1
	Win32NoteInfoThread   = 2
	Win32NoteInfoModule   = 3
	Win32NoteInfoModule64 = 4
)

var errBadSectionNote = errors.New("malformed section note")

// SectionNote encodes a named section as a note descriptor.
func SectionNote(name string, data []byte) Note {
	desc := make([]byte, 0, len(name)+1+len(data))
	desc = append(desc, name...)
	desc = append(desc, 0)
	desc = append(desc, data...)
	return Note{Type: WincoreSectionNoteType, Name: WincoreNoteName, Data: desc}
}

// ParseSectionNote is the inverse of SectionNote.
func ParseSectionNote(desc []byte) (name string, data []byte, err error) {
	i := bytes.IndexByte(desc, 0)
	if i <= 0 {
		return "", nil, errBadSectionNote
	}
	return string(desc[:i]), desc[i+1:], nil
}
