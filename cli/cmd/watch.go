package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	iconfig "github.com/pithecene-io/imagestream/cli/config"
	"github.com/pithecene-io/imagestream/cli/render"
	"github.com/pithecene-io/imagestream/cli/tui"
	"github.com/pithecene-io/imagestream/display"
	"github.com/pithecene-io/imagestream/handler"
	"github.com/pithecene-io/imagestream/iox"
	"github.com/pithecene-io/imagestream/retrieval"
	"github.com/pithecene-io/imagestream/stream"
	streamredis "github.com/pithecene-io/imagestream/stream/redis"
)

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Subscribe to a handler's stream and reconstruct its frames",
		Description: `Follows the live stream of a handler, rebuilds each frame and re-fetches
chunks that were missed or arrived truncated. Without --tui every
completed frame is rendered as it finishes.

Exit codes:
  0  every frame reconstructed
  1  runtime error
  2  invalid flags or config
  3  a frame completed with chunks still missing`,
		Flags: concat(
			[]cli.Flag{ConfigFlag, FormatFlag, NoColorFlag, TUIFlag},
			streamFlags(),
			retrievalFlags(),
			[]cli.Flag{
				&cli.BoolFlag{Name: "eager", Usage: "Re-fetch missing chunks as soon as a gap is seen"},
				&cli.BoolFlag{Name: "no-refetch", Usage: "Never contact the retrieval server"},
				&cli.IntFlag{Name: "frames", Usage: "Stop after this many completed frames (0: run until interrupted)"},
				&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress logs"},
			},
		),
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ss, err := resolveStream(c, cfg)
	if err != nil {
		return usageError(err)
	}
	if ss.kind != iconfig.StreamRedis {
		return usageError(errors.New("watch requires --stream redis"))
	}
	rcfg, err := streamConfig(ss)
	if err != nil {
		return usageError(err)
	}

	useTUI := c.Bool("tui")
	if useTUI && !tui.IsTUISupported(tui.ViewWatch) {
		return cli.Exit("--tui is not supported for watch", exitError)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(ss.name, ss.channel, c.Bool("quiet") || useTUI)
	defer func() { _ = logger.Sync() }()

	opts := display.Options{
		Channel: handler.RetrievalChannel(ss.name),
		Eager:   c.Bool("eager"),
		Logger:  logger,
	}
	if !c.Bool("no-refetch") {
		addr, err := retrievalAddr(c, cfg, ss.name)
		if err != nil {
			return err
		}
		opts.Fetcher = retrieval.NewClient(addr, retrieval.WithCodec(rcfg.Codec))
	}

	sub, err := streamredis.Subscribe(ctx, rcfg, streamredis.WithDecodeErrorHandler(func(err error) {
		logger.Warn("undecodable event", map[string]any{"error": err.Error()})
	}))
	if err != nil {
		return cli.Exit(fmt.Sprintf("subscribe %s: %v", ss.channel, err), exitError)
	}
	defer iox.DiscardClose(sub)

	asm := display.New(opts)
	limit := c.Int("frames")

	if useTUI {
		updates := make(chan display.Progress, 64)
		errc := make(chan error, 1)
		go func() {
			err := watchFrames(ctx, asm, sub, limit, func(p display.Progress) error {
				select {
				case updates <- p:
				case <-ctx.Done():
				}
				return nil
			}, nil)
			close(updates)
			errc <- err
		}()
		if err := tui.RunWatch(ss.channel, updates, errc); err != nil {
			return cli.Exit(err.Error(), exitError)
		}
		return nil
	}

	incomplete := false
	err = watchFrames(ctx, asm, sub, limit, nil, func(p display.Progress) error {
		if len(p.Pending) > 0 {
			incomplete = true
		}
		return r.Render(p)
	})
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	if incomplete {
		return cli.Exit("", exitIncomplete)
	}
	return nil
}

// watchFrames runs asm over sub. onUpdate sees every progress snapshot and
// onFrame every completed frame. It returns after limit completed frames
// when limit > 0, when sub ends, or when ctx is cancelled; cancellation is
// not an error.
func watchFrames(ctx context.Context, asm *display.Assembler, sub stream.Subscriber, limit int,
	onUpdate, onFrame func(display.Progress) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		frames  int
		lastID  string
		failure error
	)
	err := asm.Run(ctx, sub, func(p display.Progress) {
		if failure != nil || (limit > 0 && frames >= limit) {
			return
		}
		if onUpdate != nil {
			if err := onUpdate(p); err != nil {
				failure = err
				cancel()
				return
			}
		}
		if !p.Done || p.FrameID == lastID {
			return
		}
		lastID = p.FrameID
		frames++
		if onFrame != nil {
			if err := onFrame(p); err != nil {
				failure = err
				cancel()
				return
			}
		}
		if limit > 0 && frames >= limit {
			cancel()
		}
	})
	if failure != nil {
		return failure
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
