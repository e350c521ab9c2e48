package winsignal

import "testing"

func TestToTarget(t *testing.T) {
	tests := []struct {
		tr   Translator
		sig  Signal
		want int
		ok   bool
	}{
		{Windows(), Signal0, 0, true},
		{Windows(), SIGABRT, 22, true},
		{Windows(), SIGSEGV, 11, true},
		{Windows(), SIGTERM, 15, true},
		{Windows(), SIGUSR1, 0, false},
		{Windows(), SIGWINCH, 0, false},
		{Cygwin(), SIGABRT, 6, true},
		{Cygwin(), SIGUSR1, 30, true},
		{Cygwin(), SIGPWR, 29, true},
		{Cygwin(), SIGLOST, 0, false},
		{Cygwin(), SIGINFO, 0, false},
		{Cygwin(), Unknown, 0, false},
		{Cygwin(), Signal(1000), 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.tr.Name()+"/"+tc.sig.String(), func(t *testing.T) {
			got, ok := tc.tr.ToTarget(tc.sig)
			if ok != tc.ok || got != tc.want {
				t.Errorf("ToTarget(%v) = %d, %v; want %d, %v", tc.sig, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestFromTarget(t *testing.T) {
	tests := []struct {
		code uint32
		want Signal
	}{
		{0, Signal0},
		{0xC0000005, SIGSEGV},
		{0xC00000FD, SIGSEGV},
		{0xC000008C, SIGFPE},
		{0xC0000095, SIGFPE},
		{0x80000003, SIGTRAP},
		{0x80000004, SIGTRAP},
		{0x40010005, SIGINT},
		{0x40010008, SIGINT},
		{0xC000001D, SIGILL},
		{0xC0000096, SIGILL},
		{0xC0000025, SIGILL},
		{0x40000015, SIGABRT},
		{0xC0000409, Unknown},
		{0x12345678, Unknown},
	}
	for _, tc := range tests {
		if got := FromTarget(tc.code); got != tc.want {
			t.Errorf("FromTarget(%#x) = %v, want %v", tc.code, got, tc.want)
		}
		if got := Cygwin().FromTarget(tc.code); got != tc.want {
			t.Errorf("Cygwin().FromTarget(%#x) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestForBinary(t *testing.T) {
	if ForBinary(true).Name() != "cygwin" || ForBinary(false).Name() != "windows" {
		t.Errorf("wrong translator selected")
	}
	if s, ok := ByName("SEGV"); !ok || s != SIGSEGV {
		t.Errorf("ByName(SEGV) = %v, %v", s, ok)
	}
}
