package terminal

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
)

// transcriptWriter is the terminal's stdout. Everything goes through the
// pager and, while a transcript is active, is copied to the transcript
// file as well.
type transcriptWriter struct {
	pw *pagingWriter

	transcript *bufio.Writer
	closer     io.Closer
	// quiet suppresses pw while a transcript is active.
	quiet bool
}

func (w *transcriptWriter) Write(p []byte) (int, error) {
	if !w.quiet {
		if n, err := w.pw.Write(p); err != nil {
			return n, err
		}
	}
	if w.transcript == nil {
		return len(p), nil
	}
	return w.transcript.Write(p)
}

// Echo copies str to the transcript only, used for prompts and the
// commands typed at them.
func (w *transcriptWriter) Echo(str string) {
	if w.transcript != nil {
		w.transcript.WriteString(str)
	}
}

func (w *transcriptWriter) Flush() {
	if w.transcript != nil {
		w.transcript.Flush()
	}
}

// TranscribeTo starts copying output to fh, replacing any transcript in
// progress. With fileOnly set the terminal itself stays silent.
func (w *transcriptWriter) TranscribeTo(fh io.WriteCloser, fileOnly bool) {
	w.CloseTranscript()
	w.closer = fh
	w.transcript = bufio.NewWriter(fh)
	w.quiet = fileOnly
}

// CloseTranscript stops the transcript, if there is one.
func (w *transcriptWriter) CloseTranscript() error {
	if w.transcript == nil {
		return nil
	}
	w.transcript.Flush()
	err := w.closer.Close()
	w.transcript, w.closer, w.quiet = nil, nil, false
	return err
}

type pagingState uint8

const (
	// direct writes straight through.
	direct pagingState = iota
	// holding buffers output until it is known whether it fits the window.
	holding
	// piping sends everything to the pager process.
	piping
)

// pagingWriter writes to w until PageMaybe is called. After that, once
// more than a window's worth of output has been written, the rest of the
// command's output is piped to a pager.
type pagingWriter struct {
	w     io.Writer
	state pagingState

	held      []byte
	endsInNL  bool
	rows      int
	cols      int
	pagerPath string
	pager     *exec.Cmd
	pagerIn   io.WriteCloser
	onFailure func()
}

func (w *pagingWriter) Write(p []byte) (int, error) {
	switch w.state {
	case holding:
		w.held = append(w.held, p...)
		if !w.overflows() {
			if len(p) > 0 {
				w.endsInNL = p[len(p)-1] == '\n'
			}
			return w.w.Write(p)
		}
		if err := w.startPager(); err != nil {
			w.state = direct
			return w.w.Write(p)
		}
		if !w.endsInNL {
			io.WriteString(w.w, "\n")
		}
		io.WriteString(w.w, "Sending output to pager...\n")
		w.pagerIn.Write(w.held)
		w.held = nil
		w.state = piping
		return len(p), nil
	case piping:
		n, err := w.pagerIn.Write(p)
		if err != nil && w.onFailure != nil {
			w.onFailure()
			w.onFailure = nil
		}
		return n, err
	default:
		return w.w.Write(p)
	}
}

func (w *pagingWriter) startPager() error {
	cmd := exec.Command(w.pagerPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	w.pager, w.pagerIn = cmd, in
	return nil
}

// overflows reports whether the held output, wrapped at the window
// width, is taller than the window.
func (w *pagingWriter) overflows() bool {
	rows := 0
	for _, line := range bytes.Split(bytes.TrimSuffix(w.held, []byte{'\n'}), []byte{'\n'}) {
		rows += 1 + len(line)/(w.cols+1)
		if rows > w.rows {
			return true
		}
	}
	return false
}

// Reset waits for the pager, if one was started, and goes back to writing
// directly.
func (w *pagingWriter) Reset() {
	w.state = direct
	w.held = nil
	if w.pager != nil {
		w.pagerIn.Close()
		w.pager.Wait()
		w.pager, w.pagerIn = nil, nil
	}
}

// PageMaybe holds the output of the current command so that it can be sent
// to a pager if it does not fit the window. WINCORE_PAGER forces paging even
// when stdout is not a terminal. onFailure is called the first time writing
// to the pager fails.
func (w *pagingWriter) PageMaybe(onFailure func()) {
	if w.state != direct {
		return
	}
	pager := os.Getenv("WINCORE_PAGER")
	if pager == "" {
		if !w.interactive() {
			return
		}
		pager = os.Getenv("PAGER")
		if pager == "" {
			pager = "more"
		}
	}
	rows, cols, ok := windowSize()
	if !ok {
		return
	}
	w.state = holding
	w.pagerPath = pager
	w.rows, w.cols = rows, cols
	w.endsInNL = true
	w.onFailure = onFailure
}

func (w *pagingWriter) interactive() bool {
	if f, isFile := w.w.(*os.File); isFile && !isatty.IsTerminal(f.Fd()) {
		return false
	}
	return strings.ToLower(os.Getenv("TERM")) != "dumb"
}
