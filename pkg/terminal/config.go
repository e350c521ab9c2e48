package terminal

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/go-delve/wincore/pkg/config"
)

// setting is one parameter accepted by the config command.
type setting struct {
	name string
	show func(*config.Config) string
	set  func(t *Term, arg string) error
}

func boolSetting(name string, field func(*config.Config) *bool) setting {
	return setting{
		name: name,
		show: func(c *config.Config) string { return strconv.FormatBool(*field(c)) },
		set: func(t *Term, arg string) error {
			switch arg {
			case "true", "on":
				*field(t.conf) = true
			case "false", "off":
				*field(t.conf) = false
			default:
				return fmt.Errorf("argument to %q must be true or false", name)
			}
			return nil
		},
	}
}

func intSetting(name string, field func(*config.Config) **int) setting {
	return setting{
		name: name,
		show: func(c *config.Config) string {
			if p := *field(c); p != nil {
				return strconv.Itoa(*p)
			}
			return "<not defined>"
		},
		set: func(t *Term, arg string) error {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("argument to %q must be a number", name)
			}
			if n < 0 {
				return fmt.Errorf("argument to %q must be a number greater than zero", name)
			}
			*field(t.conf) = &n
			return nil
		},
	}
}

func configSettings() []setting {
	return []setting{
		{
			name: "aliases",
			show: func(c *config.Config) string { return fmt.Sprint(c.Aliases) },
			set:  configureSetAlias,
		},
		{
			name: "substitute-path",
			show: func(c *config.Config) string { return fmt.Sprint(c.SubstitutePath) },
			set:  configureSetSubstitutePath,
		},
		boolSetting("show-all-tib", func(c *config.Config) *bool { return &c.ShowAllTIB }),
		intSetting("max-thread-name", func(c *config.Config) **int { return &c.MaxThreadName }),
		{
			name: "symbol-path",
			show: func(c *config.Config) string { return fmt.Sprint(c.SymbolPath) },
			set: func(t *Term, arg string) error {
				t.conf.SymbolPath = config.SplitQuotedFields(arg, '"')
				return nil
			},
		},
		intSetting("text-offset-cache-size", func(c *config.Config) **int { return &c.TextOffsetCacheSize }),
		{
			name: "history-file",
			show: func(c *config.Config) string { return c.HistoryFile },
			set: func(t *Term, arg string) error {
				t.conf.HistoryFile = arg
				return nil
			},
		},
	}
}

func findSetting(name string) *setting {
	if name == "alias" {
		name = "aliases"
	}
	for _, s := range configSettings() {
		if s.name == name {
			return &s
		}
	}
	return nil
}

func configureCmd(t *Term, ctx callContext, args string) error {
	switch args {
	case "-list":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	case "":
		return errors.New("wrong number of arguments to \"config\"")
	}
	v := split2PartsBySpace(args)
	s := findSetting(v[0])
	if s == nil {
		return fmt.Errorf("%q is not a configuration parameter", v[0])
	}
	var arg string
	if len(v) == 2 {
		arg = v[1]
	}
	if err := s.set(t, arg); err != nil {
		return err
	}
	t.sess.Reconfigure()
	return nil
}

func configureList(t *Term) error {
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	for _, s := range configSettings() {
		fmt.Fprintf(w, "%s\t%s\n", s.name, s.show(t.conf))
	}
	return w.Flush()
}

// configureSetSubstitutePath adds or replaces the rule for <from> when
// given "<from> <to>" and removes it when given only "<from>".
func configureSetSubstitutePath(t *Term, rest string) error {
	argv := config.SplitQuotedFields(rest, '"')
	rules := t.conf.SubstitutePath
	idx := -1
	if len(argv) > 0 {
		for i := range rules {
			if rules[i].From == argv[0] {
				idx = i
				break
			}
		}
	}
	switch len(argv) {
	case 1:
		if idx < 0 {
			return fmt.Errorf("could not find rule for %q", argv[0])
		}
		t.conf.SubstitutePath = append(rules[:idx], rules[idx+1:]...)
	case 2:
		if idx >= 0 {
			rules[idx].To = argv[1]
			return nil
		}
		t.conf.SubstitutePath = append(rules, config.SubstitutePathRule{From: argv[0], To: argv[1]})
	default:
		return errors.New("wrong number of arguments to \"config substitute-path\"")
	}
	return nil
}

// configureSetAlias adds <alias> for <command> when given
// "<command> <alias>" and removes <alias> when given only "<alias>".
func configureSetAlias(t *Term, rest string) error {
	argv := config.SplitQuotedFields(rest, '"')
	switch len(argv) {
	case 1:
		for cmd, aliases := range t.conf.Aliases {
			kept := aliases[:0]
			for _, a := range aliases {
				if a != argv[0] {
					kept = append(kept, a)
				}
			}
			t.conf.Aliases[cmd] = kept
		}
	case 2:
		if t.conf.Aliases == nil {
			t.conf.Aliases = make(map[string][]string)
		}
		t.conf.Aliases[argv[0]] = append(t.conf.Aliases[argv[0]], argv[1])
	default:
		return errors.New("wrong number of arguments to \"config alias\"")
	}
	t.cmds.Merge(t.conf.Aliases)
	t.buildCompletions()
	return nil
}

func configNames() []string {
	settings := configSettings()
	names := make([]string, 0, len(settings))
	for _, s := range settings {
		names = append(names, s.name)
	}
	return names
}
