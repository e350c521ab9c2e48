package config

import "strings"

// SubstitutePath applies the first matching rule to p. Windows paths are
// matched case insensitively and with either separator.
//
// Only whole directories are substituted: with the rule
// {From: `C:\dir\sub`, To: `/new`} the path `C:\dir\sub\a.dll` becomes
// `/new/a.dll` but `C:\dir\sub2\a.dll` is left alone.
func SubstitutePath(p string, rules SubstitutePathRules) string {
	for _, r := range rules {
		from := normalize(r.From)
		np := normalize(p)
		if !strings.HasPrefix(np, from) {
			continue
		}
		rest := p[len(r.From):]
		if rest != "" && rest[0] != '\\' && rest[0] != '/' && !strings.HasSuffix(from, "/") {
			continue
		}
		rest = strings.TrimLeft(rest, `\/`)
		if rest == "" {
			return r.To
		}
		sep := "/"
		if strings.Contains(r.To, `\`) {
			sep = `\`
		}
		return strings.TrimRight(r.To, `\/`) + sep + strings.Replace(rest, `\`, sep, -1)
	}
	return p
}

func normalize(p string) string {
	return strings.ToLower(strings.Replace(p, `\`, "/", -1))
}
