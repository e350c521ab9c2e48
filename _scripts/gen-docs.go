//go:build ignore

// Regenerates Documentation/cli and Documentation/usage:
//
//	go run _scripts/gen-docs.go [Documentation]
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra/doc"

	"github.com/go-delve/wincore/cmd/wincore/cmds"
	"github.com/go-delve/wincore/cmd/wincore/cmds/helphelpers"
	"github.com/go-delve/wincore/pkg/terminal"
)

func main() {
	root := "Documentation"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	if err := cliDocs(filepath.Join(root, "cli")); err != nil {
		log.Fatal(err)
	}
	if err := usageDocs(filepath.Join(root, "usage")); err != nil {
		log.Fatal(err)
	}
}

// cliDocs writes the reference of the terminal commands.
func cliDocs(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	fh, err := os.Create(filepath.Join(dir, "README.md"))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fh)
	terminal.DebugCommands().WriteMarkdown(w)
	if err := w.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// usageDocs writes one page per subcommand. Every page is generated from
// a fresh command tree because helphelpers.Prepare hides flags for good.
func usageDocs(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	top := cmds.New(true)
	helphelpers.Prepare(top)
	if err := doc.GenMarkdownTree(top, dir); err != nil {
		return err
	}
	for _, sub := range cmds.New(true).Commands() {
		cmd, _, err := cmds.New(true).Find([]string{sub.Name()})
		if err != nil {
			return err
		}
		helphelpers.Prepare(cmd)
		if err := doc.GenMarkdownTree(cmd, dir); err != nil {
			return err
		}
	}
	// GenMarkdownTree skips help topics.
	fh, err := os.OpenFile(filepath.Join(dir, "wincore.md"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(fh, "* [wincore log](wincore_log.md)\t - Help about logging flags")
	return fh.Close()
}
