package cmds

import (
	"fmt"
	"io/ioutil"

	"github.com/spf13/cobra"
	"go.starlark.net/starlark"

	"github.com/coredump-run/dwarfsym"
	"github.com/coredump-run/dwarfsym/pkg/logflags"
)

// scriptCommand runs a Starlark script with symbolize(addr) and
// unwind(addr) builtins bound to an opened Dwarf, for batch-processing
// addresses read from a crash log. Grounded on
// pkg/terminal/starbind's predeclared-builtin pattern, generalized from
// RPC-call-per-builtin to direct in-process method calls since this
// module has no client/server split.
func scriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "script <file.star>",
		Short: "Run a Starlark script with symbolize()/unwind() builtins.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := ioutil.ReadFile(args[0])
			if err != nil {
				return err
			}

			d, closeFn, err := openDwarf()
			if err != nil {
				return err
			}
			defer d.Close()
			defer closeFn()

			thread := &starlark.Thread{
				Name: "dwarfsym",
				Print: func(_ *starlark.Thread, msg string) {
					fmt.Fprintln(cmd.OutOrStdout(), msg)
				},
			}
			predeclared := starlarkBuiltins(d)

			_, err = starlark.ExecFile(thread, args[0], src, predeclared)
			return err
		},
	}
}

func starlarkBuiltins(d *dwarfsym.Dwarf) starlark.StringDict {
	return starlark.StringDict{
		"symbolize": starlark.NewBuiltin("symbolize", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			addr, err := addrArg(args)
			if err != nil {
				return starlark.None, err
			}
			if logflags.Script() {
				logflags.ScriptLogger().Debugf("symbolize(%#x)", addr)
			}
			loc := d.Symbolize(addr)
			result := starlark.NewDict(2)
			if loc.HasFunction {
				result.SetKey(starlark.String("function"), starlark.String(loc.Function))
			}
			if loc.HasSource {
				result.SetKey(starlark.String("file"), starlark.String(loc.Source.File))
				result.SetKey(starlark.String("line"), starlark.MakeInt(loc.Source.Line))
			}
			return result, nil
		}),
		"unwind": starlark.NewBuiltin("unwind", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			addr, err := addrArg(args)
			if err != nil {
				return starlark.None, err
			}
			if logflags.Script() {
				logflags.ScriptLogger().Debugf("unwind(%#x)", addr)
			}
			step, err := d.Unwind(addr)
			if err != nil {
				return starlark.None, err
			}
			result := starlark.NewDict(3)
			result.SetKey(starlark.String("pc_begin"), starlark.MakeUint64(step.FDE.PcBegin))
			result.SetKey(starlark.String("pc_end"), starlark.MakeUint64(step.FDE.PcBegin+step.FDE.PcRange))
			result.SetKey(starlark.String("signal_frame"), starlark.Bool(step.CIE.IsSignalFrame()))
			return result, nil
		}),
	}
}

func addrArg(args starlark.Tuple) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one address argument")
	}
	switch v := args[0].(type) {
	case starlark.Int:
		u, ok := v.Uint64()
		if !ok {
			return 0, fmt.Errorf("address out of range")
		}
		return u, nil
	case starlark.String:
		return parseAddr(string(v))
	default:
		return 0, fmt.Errorf("unsupported address argument type %s", v.Type())
	}
}
