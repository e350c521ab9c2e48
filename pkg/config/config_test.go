package config

import "testing"

func TestParseDefaultConfig(t *testing.T) {
	c, err := Parse([]byte(defaultConfig))
	if err != nil {
		t.Fatal(err)
	}
	if c.ShowAllTIB {
		t.Errorf("show-all-tib should be off by default")
	}
	if c.GetMaxThreadName() != DefaultMaxThreadName {
		t.Errorf("GetMaxThreadName() = %d", c.GetMaxThreadName())
	}
	if c.GetTextOffsetCacheSize() != DefaultTextOffsetCacheSize {
		t.Errorf("GetTextOffsetCacheSize() = %d", c.GetTextOffsetCacheSize())
	}
}

func TestParseConfig(t *testing.T) {
	c, err := Parse([]byte(`
show-all-tib: true
max-thread-name: 20
symbol-path: ["/symbols", "/opt/dlls"]
aliases:
  info: ["i"]
substitute-path:
  - {from: 'C:\Windows', to: /mnt/win}
`))
	if err != nil {
		t.Fatal(err)
	}
	if !c.ShowAllTIB || c.GetMaxThreadName() != 20 || len(c.SymbolPath) != 2 {
		t.Fatalf("unexpected config %#v", c)
	}
	if got := c.Aliases["info"]; len(got) != 1 || got[0] != "i" {
		t.Fatalf("unexpected aliases %v", c.Aliases)
	}
	fn := c.SubstitutePathFn()
	if fn == nil {
		t.Fatal("expected substitution function")
	}
	if got := fn(`c:\windows\System32\ntdll.dll`); got != "/mnt/win/System32/ntdll.dll" {
		t.Fatalf("substitution = %q", got)
	}
}

func TestSubstitutePath(t *testing.T) {
	rules := SubstitutePathRules{{From: `C:\dir\sub`, To: "/new"}}
	for _, tc := range []struct{ in, out string }{
		{`C:\dir\sub\a.dll`, "/new/a.dll"},
		{`C:\dir\sub2\a.dll`, `C:\dir\sub2\a.dll`},
		{`C:\dir\sub`, "/new"},
		{`D:\other.dll`, `D:\other.dll`},
	} {
		if got := SubstitutePath(tc.in, rules); got != tc.out {
			t.Errorf("SubstitutePath(%q) = %q, want %q", tc.in, got, tc.out)
		}
	}
}
