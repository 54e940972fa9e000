// Command rollbook takes attendance offline-first against a remote system
// of record.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/rollbook/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		// Command failures were already written by the output formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
