package terminal

import (
	"bytes"
	"testing"
)

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestTranscriptWriter(t *testing.T) {
	var screen bytes.Buffer
	w := &transcriptWriter{pw: &pagingWriter{w: &screen}}
	file := &closeRecorder{}

	w.Write([]byte("before\n"))
	w.TranscribeTo(file, false)
	w.Echo("(wincore) threads\n")
	w.Write([]byte("Thread 0x64\n"))
	if err := w.CloseTranscript(); err != nil {
		t.Fatal(err)
	}
	if !file.closed {
		t.Error("transcript not closed")
	}
	if got := file.String(); got != "(wincore) threads\nThread 0x64\n" {
		t.Errorf("transcript %q", got)
	}
	if got := screen.String(); got != "before\nThread 0x64\n" {
		t.Errorf("screen %q", got)
	}
}

func TestTranscriptFileOnly(t *testing.T) {
	var screen bytes.Buffer
	w := &transcriptWriter{pw: &pagingWriter{w: &screen}}
	file := &closeRecorder{}
	w.TranscribeTo(file, true)
	w.Write([]byte("hidden\n"))
	w.CloseTranscript()
	w.Write([]byte("shown\n"))
	if screen.String() != "shown\n" || file.String() != "hidden\n" {
		t.Errorf("screen %q, file %q", screen.String(), file.String())
	}
}

func TestPagingOverflow(t *testing.T) {
	w := &pagingWriter{rows: 3, cols: 4}
	w.held = []byte("ab\ncd\n")
	if w.overflows() {
		t.Error("two short lines overflow a three row window")
	}
	w.held = []byte("abcdefghij\n")
	if w.overflows() {
		t.Error("one line wrapped to three rows should still fit")
	}
	w.held = []byte("abcdefghij\nx\n")
	if !w.overflows() {
		t.Error("four rows should overflow")
	}
}

func TestPagingResetIsDirect(t *testing.T) {
	var screen bytes.Buffer
	w := &pagingWriter{w: &screen, state: holding, rows: 100, cols: 80}
	w.Write([]byte("x\n"))
	w.Reset()
	if w.state != direct || w.held != nil {
		t.Fatal("reset did not return to direct mode")
	}
	w.Write([]byte("y\n"))
	if screen.String() != "x\ny\n" {
		t.Errorf("screen %q", screen.String())
	}
}
