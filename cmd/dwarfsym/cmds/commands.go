// Package cmds builds the dwarfsym command tree: cobra subcommands that
// open a Dwarf object from either a SectionManifest or a real executable
// and drive it interactively or in batch. Grounded on
// github.com/go-delve/delve/cmd/dlv/cmds/commands.go's root-command-plus-
// persistent-flags construction.
package cmds

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coredump-run/dwarfsym"
	"github.com/coredump-run/dwarfsym/internal/containersec"
	"github.com/coredump-run/dwarfsym/pkg/logflags"
	"github.com/coredump-run/dwarfsym/sections"
)

var (
	logFlag   bool
	logOutput string

	manifestPath string
	binaryPath   string
	bigEndian    bool
	addrSize     int
)

// New returns the root dwarfsym command.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:   "dwarfsym",
		Short: "Reads DWARF debugging information and eh_frame unwind tables.",
	}

	root.PersistentFlags().BoolVar(&logFlag, "log", false, "Enable logging of recoverable decode anomalies.")
	root.PersistentFlags().StringVar(&logOutput, "log-dest", "", "Comma separated list of categories to log (decode, unwind, repl, script).")
	root.PersistentFlags().StringVar(&manifestPath, "manifest", "", "Path to a SectionManifest YAML file.")
	root.PersistentFlags().StringVar(&binaryPath, "exe", "", "Path to an ELF/Mach-O/PE executable to read sections from.")
	root.PersistentFlags().BoolVar(&bigEndian, "big-endian", false, "Decode sections as big-endian (default little-endian).")
	root.PersistentFlags().IntVar(&addrSize, "addr-size", 8, "Native address size in bytes (4 or 8).")

	root.AddCommand(symbolizeCommand())
	root.AddCommand(unwindCommand())
	root.AddCommand(replCommand())
	root.AddCommand(scriptCommand())
	root.AddCommand(flagsCommand(root))

	return root
}

// flagsCommand prints the current value of every persistent flag, for
// scripts that build up a dwarfsym invocation piecemeal and want to
// confirm what they assembled before running it for real.
func flagsCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:    "flags",
		Short:  "Print the resolved value of every persistent flag.",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", f.Name, f.Value.String())
			})
			return nil
		},
	}
}

func byteOrder() binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func buildRegistry() (*sections.Registry, func(), error) {
	switch {
	case manifestPath != "":
		m, err := LoadManifest(manifestPath)
		if err != nil {
			return nil, nil, err
		}
		reg, err := m.BuildRegistry()
		if err != nil {
			return nil, nil, err
		}
		return reg, func() {}, nil
	case binaryPath != "":
		reg, closer, err := containersec.Open(binaryPath)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() { closer() }, nil
	default:
		return nil, nil, fmt.Errorf("one of --manifest or --exe is required")
	}
}

// openDwarf builds a Dwarf object from whichever of --manifest or --exe
// was given, wiring its Logf into logflags's "decode" category.
func openDwarf() (*dwarfsym.Dwarf, func(), error) {
	if err := logflags.Setup(logFlag, logOutput); err != nil {
		return nil, nil, err
	}

	reg, closeFn, err := buildRegistry()
	if err != nil {
		return nil, nil, err
	}

	logf := func(format string, args ...interface{}) {
		if logflags.Decode() {
			logflags.DecodeLogger().Debugf(format, args...)
		}
	}
	d, err := dwarfsym.Open(reg, byteOrder(), dwarfsym.Options{NativeAddrSize: addrSize, Logf: logf})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return d, closeFn, nil
}

// colorableStdout returns a writer that interprets ANSI color escapes,
// using go-isatty to decide whether stdout is actually a terminal and
// go-colorable to make the escapes work on terminals that otherwise
// wouldn't render them (notably older Windows consoles).
func colorableStdout() io.Writer {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return os.Stdout
	}
	return colorable.NewColorableStdout()
}

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func symbolizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "symbolize <address>",
		Short: "Resolve an address to a function name and source location.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			d, closeFn, err := openDwarf()
			if err != nil {
				return err
			}
			defer d.Close()
			defer closeFn()

			loc := d.Symbolize(addr)
			printSymbolize(colorableStdout(), addr, loc)
			return nil
		},
	}
}

func printSymbolize(w io.Writer, addr uint64, loc dwarfsym.Location) {
	fmt.Fprintf(w, "%#016x  ", addr)
	if loc.HasFunction {
		fmt.Fprintf(w, "%s%s%s", ansiGreen, loc.Function, ansiReset)
	} else {
		fmt.Fprint(w, "?")
	}
	if loc.HasSource {
		fmt.Fprintf(w, "  %s%s:%d%s", ansiYellow, loc.Source.File, loc.Source.Line, ansiReset)
	}
	fmt.Fprintln(w)
}

func unwindCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unwind <address>",
		Short: "Resolve an address to its call-frame FDE/CIE.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			d, closeFn, err := openDwarf()
			if err != nil {
				return err
			}
			defer d.Close()
			defer closeFn()

			step, err := d.Unwind(addr)
			if err != nil {
				return err
			}
			printUnwind(colorableStdout(), addr, step)
			return nil
		},
	}
}

func printUnwind(w io.Writer, addr uint64, step dwarfsym.UnwindStep) {
	fmt.Fprintf(w, "%#016x  %sFDE%s [%#x, %#x)  ra_reg=%d  signal_frame=%v\n",
		addr, ansiBold, ansiReset, step.FDE.PcBegin, step.FDE.PcBegin+step.FDE.PcRange,
		step.CIE.ReturnAddressRegister, step.CIE.IsSignalFrame())
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}
