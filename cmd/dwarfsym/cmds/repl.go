package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/spf13/cobra"

	"github.com/coredump-run/dwarfsym"
	"github.com/coredump-run/dwarfsym/pkg/logflags"
)

// replCommand runs an interactive loop that repeatedly symbolicates and
// unwinds addresses typed by the user, tab-completing known function
// names. Grounded on pkg/terminal/starbind/repl.go's liner-driven
// read-eval-print loop, generalized from Starlark expression evaluation
// to this module's two-verb command language ("sym <addr>" / "unwind
// <addr>").
func replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive symbolicate/unwind loop with tab completion.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeFn, err := openDwarf()
			if err != nil {
				return err
			}
			defer d.Close()
			defer closeFn()

			return runREPL(d, cmd.OutOrStdout())
		},
	}
}

func runREPL(d *dwarfsym.Dwarf, out io.Writer) error {
	completions := trie.New()
	for _, name := range d.FunctionNames() {
		completions.Add(name, nil)
	}

	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCompleter(func(line string) []string {
		return completions.PrefixSearch(line)
	})

	for {
		line, err := rl.Prompt("dwarfsym> ")
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rl.AppendHistory(line)

		if err := evalREPLLine(d, out, line); err != nil {
			fmt.Fprintln(out, err)
		}
	}
}

func evalREPLLine(d *dwarfsym.Dwarf, out io.Writer, line string) error {
	tokenized, err := argv.Argv(line, func(s string) (string, error) {
		return "", fmt.Errorf("backtick substitution is not supported")
	}, nil)
	if err != nil {
		return err
	}
	if len(tokenized) == 0 || len(tokenized[0]) == 0 {
		return nil
	}
	words := tokenized[0]

	if logflags.REPL() {
		logflags.REPLLogger().Debugf("eval %q", line)
	}

	switch words[0] {
	case "exit", "quit":
		return io.EOF
	case "sym", "symbolize":
		if len(words) != 2 {
			return fmt.Errorf("usage: sym <address>")
		}
		addr, err := parseAddr(words[1])
		if err != nil {
			return err
		}
		printSymbolize(out, addr, d.Symbolize(addr))
	case "unwind":
		if len(words) != 2 {
			return fmt.Errorf("usage: unwind <address>")
		}
		addr, err := parseAddr(words[1])
		if err != nil {
			return err
		}
		step, err := d.Unwind(addr)
		if err != nil {
			return err
		}
		printUnwind(out, addr, step)
	default:
		return fmt.Errorf("unknown command %q (try sym, unwind, exit)", words[0])
	}
	return nil
}
