package terminal

import (
	"fmt"
	"io"
	"strings"
)

// WriteMarkdown writes the documentation of every command to w.
func (c *Commands) WriteMarkdown(w io.Writer) {
	fmt.Fprintf(w, `# Configuration and Command History

Configuration and command history files are located in `+"`$HOME/.wincore`"+`.

The configuration file `+"`config.yml`"+` contains all the configurable options and their default values. The command history is stored in `+"`%s`"+`.

# Commands
`, historyFile)

	c.byGroup(func(g commandGroup, cmds []command) error {
		fmt.Fprintf(w, "\n## %v\n\nCommand | Description\n--------|------------\n", g)
		for _, cmd := range cmds {
			name := cmd.aliases[0]
			fmt.Fprintf(w, "[%s](#%s) | %s\n", name, name, cmd.summary())
		}
		fmt.Fprintln(w)
		return nil
	})

	for _, cmd := range c.cmds {
		fmt.Fprintf(w, "## %s\n%s\n\n", cmd.aliases[0], cmd.helpMsg)
		if others := cmd.aliases[1:]; len(others) > 0 {
			fmt.Fprintf(w, "Aliases: %s\n", strings.Join(others, " "))
		}
		if len(cmd.subcommands) > 0 {
			fmt.Fprintf(w, "Subcommands: %s\n", strings.Join(cmd.subcommands, ", "))
		}
		fmt.Fprintln(w)
	}
}
