package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/cli/reader"
	"github.com/pithecene-io/imagestream/cli/render"
	"github.com/pithecene-io/imagestream/cli/tui"
)

// InspectCommand returns the inspect command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect an archived frame",
		ArgsUsage: "<frame-id|manifest-path>",
		Description: `Shows the manifest and FITS content of one archived frame. The image is
read back, checked against the manifest digest and parsed. With --file a
local FITS file (optionally .gz, .zst or .lz4) is inspected instead.`,
		Flags: concat(
			[]cli.Flag{ConfigFlag},
			TUIReadOnlyFlags(),
			storeFlags(),
			[]cli.Flag{
				&cli.StringFlag{Name: "file", Usage: "Inspect a local FITS file"},
			},
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	path := c.String("file")
	if path == "" && c.NArg() != 1 {
		return usageError(errors.New("inspect requires a frame id or id prefix, or --file"))
	}
	if path != "" && c.NArg() != 0 {
		return usageError(errors.New("--file cannot be combined with a frame argument"))
	}

	var (
		resp *reader.InspectFrameResponse
		err  error
	)
	if path != "" {
		resp, err = reader.InspectFile(path)
	} else {
		var rd *reader.Reader
		rd, err = openReader(c)
		if err != nil {
			return err
		}
		resp, err = rd.InspectFrame(c.Context, c.Args().First())
	}
	if errors.Is(err, reader.ErrFrameNotFound) {
		return cli.Exit(err.Error(), exitError)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect: %v", err), exitError)
	}

	if c.Bool("tui") {
		return tui.Run(tui.ViewInspectFrame, resp)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(resp)
}
