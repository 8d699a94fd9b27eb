// vmpu-demo is the command-line interface to the TrustZone memory-protection
// supervisor's scenario runner.
package main

import (
	"context"
	"os"

	"github.com/arm-supervisor/vmpu/internal/cli"
	"github.com/arm-supervisor/vmpu/internal/cli/cmd"
)

var (
	commands = []cli.Command{
		cmd.Simulate(),
	}
)

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
