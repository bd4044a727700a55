package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	iconfig "github.com/pithecene-io/imagestream/cli/config"
	"github.com/pithecene-io/imagestream/cli/render"
	"github.com/pithecene-io/imagestream/handler"
	"github.com/pithecene-io/imagestream/iox"
	"github.com/pithecene-io/imagestream/retrieval"
	streamredis "github.com/pithecene-io/imagestream/stream/redis"
	"github.com/pithecene-io/imagestream/wire"
)

// FetchCommand returns the fetch command.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Retrieve one chunk from a running handler",
		ArgsUsage: "<seq>",
		Description: `Requests sequence number <seq> of the current frame over the handler's
retrieval channel. The server is found with --retrieval-addr, or through
the <name>Req.port status item when --status redis is set.`,
		Flags: concat(
			[]cli.Flag{ConfigFlag, FormatFlag, NoColorFlag},
			[]cli.Flag{
				&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Image handler name"},
				&cli.StringFlag{Name: "channel", Usage: "Retrieval channel (default <name>Req)"},
				&cli.StringFlag{Name: "codec", Usage: "Payload codec: msgpack or cbor", Value: "msgpack"},
				&cli.StringFlag{Name: "redis-url", Usage: "Redis URL for status items", EnvVars: []string{"IMAGESTREAM_REDIS_URL"}},
				&cli.DurationFlag{Name: "timeout", Usage: "Request timeout", Value: retrieval.DefaultClientTimeout},
			},
			retrievalFlags(),
		),
		Action: fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(errors.New("fetch requires exactly one <seq> argument"))
	}
	seq, err := strconv.ParseUint(c.Args().First(), 10, 32)
	if err != nil {
		return usageError(fmt.Errorf("invalid sequence number %q", c.Args().First()))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	name := resolveString(c, "name", cfg.Name)
	channel := c.String("channel")
	if channel == "" {
		if name == "" {
			return usageError(errors.New("--name or --channel is required"))
		}
		channel = handler.RetrievalChannel(name)
	}
	codec, err := wire.Lookup(resolveString(c, "codec", cfg.Stream.Codec))
	if err != nil {
		return usageError(err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	addr, err := retrievalAddr(c, cfg, name)
	if err != nil {
		return err
	}

	client := retrieval.NewClient(addr, retrieval.WithCodec(codec), retrieval.WithTimeout(c.Duration("timeout")))
	ev, err := client.Retrieve(c.Context, channel, uint32(seq))
	if err != nil {
		if retrieval.IsNotFound(err) {
			return cli.Exit(err.Error(), exitIncomplete)
		}
		return cli.Exit(err.Error(), exitError)
	}
	return r.Render(ev)
}

// retrievalAddr returns --retrieval-addr, or looks the handler's port up
// in the status item store.
func retrievalAddr(c *cli.Context, cfg *iconfig.Config, name string) (string, error) {
	if addr := resolveString(c, "retrieval-addr", cfg.Retrieval.Addr); addr != "" {
		return addr, nil
	}
	st, err := resolveStatus(c, cfg, resolveString(c, "redis-url", cfg.Stream.URL))
	if err != nil {
		return "", usageError(err)
	}
	if st.kind != iconfig.StatusRedis || name == "" {
		return "", usageError(errors.New("--retrieval-addr is required unless --status redis and --name are set"))
	}

	poster, err := streamredis.NewStatusPoster(st.url, st.ttl)
	if err != nil {
		return "", cli.Exit(fmt.Sprintf("open status store: %v", err), exitError)
	}
	defer iox.DiscardClose(poster)

	ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
	defer cancel()
	port, err := poster.Lookup(ctx, handler.PortItem(name))
	if errors.Is(err, streamredis.ErrNoStatus) {
		return "", cli.Exit(fmt.Sprintf("no retrieval port posted for handler %q", name), exitError)
	}
	if err != nil {
		return "", cli.Exit(fmt.Sprintf("lookup %s: %v", handler.PortItem(name), err), exitError)
	}
	return net.JoinHostPort(c.String("retrieval-host"), port), nil
}
