package logflags

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error { return nil }

func withLogOut(t *testing.T) *bufferWriter {
	t.Helper()
	bw := &bufferWriter{}
	logOut = bw
	t.Cleanup(func() { logOut = nil })
	return bw
}

func TestBackendReceivesLayerFields(t *testing.T) {
	out := withLogOut(t)
	t.Cleanup(func() { UseBackend(nil) })

	var got Fields
	var gotOut io.Writer
	want := entry{}
	UseBackend(func(enabled bool, fields Fields, w io.Writer) Logger {
		if !enabled {
			t.Errorf("layer should be enabled")
		}
		got, gotOut = fields, w
		return want
	})

	l := &layer{on: true, fields: Fields{"layer": "core", "kind": "solib"}}
	if l.logger() != want {
		t.Fatal("backend logger not returned")
	}
	if got["layer"] != "core" || got["kind"] != "solib" {
		t.Errorf("fields = %v", got)
	}
	if gotOut != out {
		t.Errorf("backend did not get the log destination")
	}
}

func TestDisabledLayerOnlyLogsErrors(t *testing.T) {
	out := withLogOut(t)
	l := newLogger(false, Fields{"layer": "dap"})
	e := l.(entry)
	if e.e.Logger.Level != logrus.ErrorLevel {
		t.Fatalf("level = %v", e.e.Logger.Level)
	}
	l.Debugf("hidden %d", 1)
	l.Errorf("shown %d", 2)
	s := out.String()
	if bytes.Contains([]byte(s), []byte("hidden 1")) || !bytes.Contains([]byte(s), []byte("shown 2")) {
		t.Fatalf("unexpected output %q", s)
	}
	if !bytes.Contains([]byte(s), []byte("layer=dap")) {
		t.Errorf("layer field missing from %q", s)
	}
}

func TestEnabledLayerLogsDebug(t *testing.T) {
	out := withLogOut(t)
	l := newLogger(true, Fields{"layer": "session"})
	if l.(entry).e.Logger.Formatter != textFormatter {
		t.Fatal("wrong formatter")
	}
	l.WithField("thread", "0x64").Debugf("hello %d", 42)
	s := out.String()
	if !bytes.Contains([]byte(s), []byte("hello 42")) || !bytes.Contains([]byte(s), []byte("thread=0x64")) {
		t.Fatalf("unexpected output %q", s)
	}
}

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		for _, l := range layers {
			l.on = false
		}
	})
	if err := Setup(false, "solib", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected errLogstrWithoutLog, got %v", err)
	}
	if err := Setup(true, "minidump,solib,bogus", ""); err != nil {
		t.Fatal(err)
	}
	if !Snapshot() || !Solib() || Session() || DAP() {
		t.Fatalf("wrong flags after setup: snapshot=%v solib=%v session=%v dap=%v", Snapshot(), Solib(), Session(), DAP())
	}
}

func TestSetupDefaultsToSession(t *testing.T) {
	t.Cleanup(func() { session.on = false })
	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Session() {
		t.Fatal("session layer not enabled by default")
	}
}
