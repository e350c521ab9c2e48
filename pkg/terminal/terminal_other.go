//go:build !windows

package terminal

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// getColorableWriter returns stdout. Escape codes are only emitted when
// stdout is a terminal.
func getColorableWriter() io.Writer {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return plainWriter{os.Stdout}
	}
	return os.Stdout
}

// plainWriter strips ANSI escape sequences.
type plainWriter struct {
	w io.Writer
}

func (pw plainWriter) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '\033' && i+1 < len(p) && p[i+1] == '[' {
			j := i + 2
			for j < len(p) && (p[j] < '@' || p[j] > '~') {
				j++
			}
			i = j
			continue
		}
		out = append(out, p[i])
	}
	if _, err := pw.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
