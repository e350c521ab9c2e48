package snapshot

import (
	"bytes"
	"io"
	"os"
)

var (
	minidumpMagic = []byte("MDMP")
	elfMagic      = []byte("\x7fELF")
)

// Open loads the snapshot stored at path, which can be a Windows minidump
// or an ELF core file.
func Open(path string) (*Snapshot, error) {
	kind, err := detect(path)
	if err != nil {
		return nil, err
	}
	var s *Snapshot
	switch kind {
	case KindMinidump:
		s, err = openMinidump(path)
	case KindELF:
		s, err = openELF(path)
	default:
		return nil, ErrUnrecognizedFormat
	}
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

func detect(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return KindUnknown, ErrUnrecognizedFormat
		}
		return KindUnknown, err
	}
	switch {
	case bytes.Equal(magic, minidumpMagic):
		return KindMinidump, nil
	case bytes.Equal(magic, elfMagic):
		return KindELF, nil
	}
	return KindUnknown, ErrUnrecognizedFormat
}
