// Package cmd provides CLI commands for the imagestream binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect and watch.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, watch only)",
	}

	// ConfigFlag points at an imagestream.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to imagestream.yaml (flags override its values)",
		EnvVars: []string{"IMAGESTREAM_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// streamFlags select the live event transport.
func streamFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Image handler name"},
		&cli.StringFlag{Name: "stream", Usage: "Stream transport: redis or memory", Value: "memory"},
		&cli.StringFlag{Name: "redis-url", Usage: "Redis URL for the stream and status items", EnvVars: []string{"IMAGESTREAM_REDIS_URL"}},
		&cli.StringFlag{Name: "channel", Usage: "Stream channel (default imagestream:<name>)"},
		&cli.StringFlag{Name: "codec", Usage: "Payload codec: msgpack or cbor", Value: "msgpack"},
		&cli.DurationFlag{Name: "stream-timeout", Usage: "Per-publish timeout", Value: 5 * time.Second},
		&cli.IntFlag{Name: "stream-retries", Usage: "Publish retry attempts"},
	}
}

// storeFlags locate the frame archive store.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "archive-backend", Usage: "Archive backend: fs, s3 or memory (empty disables)"},
		&cli.StringFlag{Name: "archive-path", Usage: "Archive path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "archive-region", Usage: "AWS region for s3 (optional, uses default chain)"},
		&cli.StringFlag{Name: "archive-endpoint", Usage: "Custom s3 endpoint (R2, MinIO)"},
		&cli.BoolFlag{Name: "archive-s3-path-style", Usage: "Use path-style s3 addressing"},
	}
}

// archiveFlags configure archival of completed frames.
func archiveFlags() []cli.Flag {
	return append(storeFlags(),
		&cli.IntFlag{Name: "archive-queue", Usage: "Frames waiting for archival before new ones are dropped", Value: 4},
		&cli.StringFlag{Name: "compression", Usage: "Archived image compression: none, gzip, zstd, lz4", Value: "none"},
	)
}

// adapterFlags configure frame-archived notifications.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "adapter", Usage: "Notification adapter: webhook or redis"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Adapter endpoint URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis channel for the redis adapter"},
		&cli.StringSliceFlag{Name: "adapter-header", Usage: "Webhook header as key=value (repeatable)"},
		&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-notification timeout", Value: 10 * time.Second},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Notification retry attempts", Value: 3},
	}
}

// retrievalFlags locate or configure the retrieval server.
func retrievalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "retrieval-addr", Usage: "Retrieval server address (host:port)"},
		&cli.StringFlag{Name: "retrieval-host", Usage: "Host used with a port found in status items", Value: "127.0.0.1"},
		&cli.StringFlag{Name: "status", Usage: "Status item store: redis or none"},
		&cli.StringFlag{Name: "status-url", Usage: "Redis URL for status items (default --redis-url)"},
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
