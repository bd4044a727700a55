package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/archive"
	"github.com/pithecene-io/imagestream/cli/render"
	"github.com/pithecene-io/imagestream/types"
	"github.com/pithecene-io/imagestream/wire"
)

// VersionResponse describes the build and the encodings it speaks.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	// Schema is the live event schema version.
	Schema       string   `json:"schema"`
	Go           string   `json:"go"`
	Codecs       []string `json:"codecs"`
	Compressions []string `json:"compressions"`
}

func newVersionResponse(commit string) VersionResponse {
	return VersionResponse{
		Version: types.Version,
		Commit:  commit,
		Schema:  types.SchemaVersion,
		Go:      runtime.Version(),
		Codecs:  wire.Names(),
		Compressions: []string{
			string(archive.CompressionNone),
			string(archive.CompressionGzip),
			string(archive.CompressionZstd),
			string(archive.CompressionLZ4),
		},
	}
}

// VersionCommand returns the version command. It reads nothing but the
// binary.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version, schema and supported encodings",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for version", exitError)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(newVersionResponse(commit))
		},
	}
}
