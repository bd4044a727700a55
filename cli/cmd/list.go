package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/cli/reader"
	"github.com/pithecene-io/imagestream/cli/render"
)

// listWarningThreshold is the unlimited result count above which list
// suggests --limit on an interactive terminal.
const listWarningThreshold = 100

func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// ListCommand returns the list command. Rows are thin; inspect shows one
// frame in full.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List archived frames",
		Flags: concat(
			[]cli.Flag{ConfigFlag},
			ReadOnlyFlags(),
			storeFlags(),
			[]cli.Flag{
				&cli.StringFlag{Name: "day", Usage: "Only frames archived on this day (YYYY-MM-DD, UTC)"},
				&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Only frames with this image name"},
				&cli.IntFlag{Name: "limit", Usage: "Maximum number of results"},
			},
		),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list", exitError)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	rd, err := openReader(c)
	if err != nil {
		return err
	}

	opts := reader.ListOptions{Day: c.String("day"), Name: c.String("name"), Limit: c.Int("limit")}
	items, err := rd.ListFrames(c.Context, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list frames: %v", err), exitError)
	}
	if opts.Limit == 0 && len(items) > listWarningThreshold && isStderrTTY() {
		fmt.Fprintf(c.App.ErrWriter, "%d frames listed; narrow with --day, --name or --limit.\n\n", len(items))
	}
	return r.Render(items)
}

// openReader opens the archive store named by the store flags.
func openReader(c *cli.Context) (*reader.Reader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	a, err := resolveStore(c, cfg)
	if err != nil {
		return nil, usageError(err)
	}
	if a.backend == "" {
		return nil, usageError(errors.New("--archive-backend is required"))
	}
	files, records, err := openStore(a)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open archive: %v", err), exitError)
	}
	return reader.New(files, records), nil
}
