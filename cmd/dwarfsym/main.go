package main

import (
	"fmt"
	"os"

	"github.com/coredump-run/dwarfsym/cmd/dwarfsym/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
