package terminal

import "strings"

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	infoCmds
	breakCmds
	dataCmds
	threadCmds
)

// helpOrder is the order in which groups are listed by help and in the
// generated documentation.
var helpOrder = []commandGroup{infoCmds, breakCmds, dataCmds, threadCmds, otherCmds}

func (g commandGroup) String() string {
	switch g {
	case infoCmds:
		return "Inspecting the target"
	case breakCmds:
		return "Manipulating breakpoints"
	case dataCmds:
		return "Viewing convenience variables, types and memory"
	case threadCmds:
		return "Listing and switching between threads"
	}
	return "Other commands"
}

// byGroup calls fn once per group, in help order, with the commands of
// that group.
func (c *Commands) byGroup(fn func(g commandGroup, cmds []command) error) error {
	for _, g := range helpOrder {
		var cmds []command
		for _, cmd := range c.cmds {
			if cmd.group == g {
				cmds = append(cmds, cmd)
			}
		}
		if err := fn(g, cmds); err != nil {
			return err
		}
	}
	return nil
}

// summary is the first line of the help message.
func (cmd command) summary() string {
	h, _, _ := strings.Cut(cmd.helpMsg, "\n")
	return h
}
