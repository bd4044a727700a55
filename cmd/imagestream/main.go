// Package main is the imagestream command.
//
//	imagestream simulate --name gpi --frames 3
//	imagestream watch --name gpi --stream redis --status redis
//	imagestream fetch --name gpi 2
//
// Exit codes:
//   - 0: success
//   - 1: runtime error
//   - 2: invalid flags or config
//   - 3: a frame could not be fully reconstructed
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/cli/cmd"
	"github.com/pithecene-io/imagestream/types"
)

// commit is set with -ldflags "-X main.commit=...".
var commit = "unknown"

func newApp() *cli.App {
	return &cli.App{
		Name:                 "imagestream",
		Usage:                "Stream telescope frames to display clients in chunks",
		Version:              fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		EnableBashCompletion: true,
		ExitErrHandler:       exitErrHandler,
		Commands: []*cli.Command{
			cmd.SimulateCommand(),
			cmd.WatchCommand(),
			cmd.FetchCommand(),
			cmd.ListCommand(),
			cmd.InspectCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitStatus maps an action error to a process exit code and the message
// to print. cli.Exit("", n) carries no message.
func exitStatus(err error) (int, string) {
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		return 1, "Error: " + err.Error()
	}
	code, msg := ec.ExitCode(), ec.Error()
	if msg == fmt.Sprintf("exit status %d", code) {
		msg = ""
	}
	return code, msg
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}
