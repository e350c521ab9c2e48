package config

import (
	"reflect"
	"testing"
)

func TestSplitQuotedFields(t *testing.T) {
	for _, tc := range []struct {
		in    string
		quote rune
		want  []string
	}{
		{`field'A' 'fieldB' fie'l\'d'C fieldD 'another field' fieldE`, '\'',
			[]string{"fieldA", "fieldB", "fiel'dC", "fieldD", "another field", "fieldE"}},
		{`field"A" "fieldB" fie"l'd"C "field\"D" "yet another field"`, '"',
			[]string{"fieldA", "fieldB", "fiel'dC", `field"D`, "yet another field"}},
		{`symbol-path "" `, '"', []string{"symbol-path", ""}},
		{` "" show-all-tib`, '"', []string{"", "show-all-tib"}},
		{`symbol-path "C:\\Program Files\\app"`, '"', []string{"symbol-path", `C:\Program Files\app`}},
		{`outside\ quotes`, '"', []string{`outside\`, "quotes"}},
		{"   ", '"', []string{}},
	} {
		if got := SplitQuotedFields(tc.in, tc.quote); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitQuotedFields(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}
