// kitsune is the command-line interface to a 32-bit virtual machine with
// demand-paged memory.
package main

import (
	"context"
	"os"

	"github.com/kitsune32/kitsune/internal/cli"
	"github.com/kitsune32/kitsune/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Runner(),
}

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger().
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
