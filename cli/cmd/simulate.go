package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagestream/cli/render"
	"github.com/pithecene-io/imagestream/display"
	"github.com/pithecene-io/imagestream/handler"
	"github.com/pithecene-io/imagestream/iox"
	"github.com/pithecene-io/imagestream/log"
	"github.com/pithecene-io/imagestream/metrics"
	"github.com/pithecene-io/imagestream/retrieval"
	"github.com/pithecene-io/imagestream/stream/memory"
	"github.com/pithecene-io/imagestream/types"
	"github.com/pithecene-io/imagestream/wire"
)

// SimulateResult is the outcome of a simulate run.
type SimulateResult struct {
	Name          string           `json:"name" yaml:"name"`
	Channel       string           `json:"channel" yaml:"channel"`
	Stream        string           `json:"stream" yaml:"stream"`
	RetrievalAddr string           `json:"retrieval_addr" yaml:"retrieval_addr"`
	Frames        []FrameSummary   `json:"frames" yaml:"frames"`
	Metrics       metrics.Snapshot `json:"metrics" yaml:"metrics"`
}

// FrameSummary describes one simulated frame.
type FrameSummary struct {
	FrameID string `json:"frame_id" yaml:"frame_id"`
	Name    string `json:"name" yaml:"name"`
	Events  uint32 `json:"events" yaml:"events"`
	Chunks  int    `json:"chunks" yaml:"chunks"`
	// Reconstructed is set when the frame was verified by the in-process
	// subscriber.
	Reconstructed *bool    `json:"reconstructed,omitempty" yaml:"reconstructed,omitempty"`
	Pending       []uint32 `json:"pending,omitempty" yaml:"pending,omitempty"`
	Refetched     int      `json:"refetched,omitempty" yaml:"refetched,omitempty"`
}

// verifyTimeout bounds the wait for the in-process subscriber to finish a
// frame.
const verifyTimeout = 30 * time.Second

// SimulateCommand returns the simulate command.
func SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run an image handler that streams synthetic frames",
		Description: `Drives a handler the way an instrument would: each frame is started,
optionally described with WCS and compression preferences, delivered as
tiles and completed. With the memory stream an in-process subscriber
reconstructs every frame and checks it against what was sent.

Exit codes:
  0  every frame delivered (and verified, when verifying)
  1  runtime error
  2  invalid flags or config
  3  a frame could not be reconstructed`,
		Flags: concat(
			[]cli.Flag{ConfigFlag, FormatFlag, NoColorFlag},
			streamFlags(),
			archiveFlags(),
			adapterFlags(),
			retrievalFlags(),
			[]cli.Flag{
				&cli.IntFlag{Name: "frames", Usage: "Number of frames to send", Value: 1},
				&cli.UintFlag{Name: "width", Usage: "Frame width in pixels", Value: 64},
				&cli.UintFlag{Name: "height", Usage: "Frame height in pixels", Value: 64},
				&cli.IntFlag{Name: "bitpix", Usage: "FITS BITPIX: 16 or -32", Value: 16},
				&cli.UintFlag{Name: "tile-cols", Usage: "Tile width (0: full row)", Value: 16},
				&cli.UintFlag{Name: "tile-rows", Usage: "Tile height", Value: 16},
				&cli.DurationFlag{Name: "interval", Usage: "Pause between tiles"},
				&cli.BoolFlag{Name: "compress", Usage: "Stream truncated byte samples"},
				&cli.Float64Flag{Name: "bzero", Usage: "FITS zero offset"},
				&cli.BoolFlag{Name: "wcs", Usage: "Send a WCS header with every frame"},
				&cli.StringFlag{Name: "fits-codec", Usage: "Advertise compression preferences: none, rice, gzip1, gzip2, plio, hcompress, bzip2"},
				&cli.BoolFlag{Name: "mirror", Usage: "Keep a FITS mirror of each frame (implied by archiving)"},
				&cli.DurationFlag{Name: "linger", Usage: "Keep serving retrievals this long after the last frame"},
				&cli.Uint64Flag{Name: "seed", Usage: "Noise seed", Value: 1},
				&cli.BoolFlag{Name: "no-verify", Usage: "Skip in-process reconstruction checks"},
				&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress handler logs"},
			},
		),
		Action: simulateAction,
	}
}

func simulateAction(c *cli.Context) (retErr error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ss, err := resolveStream(c, cfg)
	if err != nil {
		return usageError(err)
	}
	as, err := resolveArchive(c, cfg)
	if err != nil {
		return usageError(err)
	}
	ad, err := resolveAdapter(c, cfg)
	if err != nil {
		return usageError(err)
	}
	st, err := resolveStatus(c, cfg, ss.redisURL)
	if err != nil {
		return usageError(err)
	}
	plan, err := resolvePlan(c)
	if err != nil {
		return usageError(err)
	}
	codec, err := wire.Lookup(ss.codec)
	if err != nil {
		return usageError(err)
	}
	frames := c.Int("frames")
	if frames < 1 {
		return usageError(fmt.Errorf("--frames must be >= 1, got %d", frames))
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(ss.name, ss.channel, c.Bool("quiet"))
	defer func() { _ = logger.Sync() }()
	collector := metrics.NewCollector(ss.name, ss.kind, as.backend)

	var cs closers
	defer func() {
		if err := cs.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	pub, bus, err := openPublisher(ss)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open stream: %v", err), exitError)
	}
	cs.add(pub.Close)

	poster, closeStatus, err := openStatus(st)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open status store: %v", err), exitError)
	}
	cs.add(closeStatus)

	queue, err := openArchiver(as, ad, logger, collector, &cs)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open archive: %v", err), exitError)
	}

	opts := handler.Options{
		Publisher:      pub,
		Logger:         logger,
		Metrics:        collector,
		Mirror:         resolveBool(c, "mirror", cfg.Mirror) || queue != nil,
		PublishTimeout: ss.timeout,
		Retrieval: retrieval.Config{
			Addr:         resolveString(c, "retrieval-addr", cfg.Retrieval.Addr),
			ReadTimeout:  cfg.Retrieval.ReadTimeout.Duration,
			WriteTimeout: cfg.Retrieval.WriteTimeout.Duration,
			Codec:        codec,
		},
		Status: poster,
	}
	if queue != nil {
		opts.Archiver = queue
	}
	h, err := handler.New(ctx, ss.name, opts)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	cs.add(h.Close)

	var v *verifier
	if bus != nil && !c.Bool("no-verify") {
		v, err = startVerifier(ctx, bus, h.Addr(), ss.name, codec, logger)
		if err != nil {
			return cli.Exit(err.Error(), exitError)
		}
		cs.add(v.Close)
	}

	result := SimulateResult{
		Name:          ss.name,
		Channel:       ss.channel,
		Stream:        ss.kind,
		RetrievalAddr: h.Addr(),
	}
	failed := false
	for n := range frames {
		summary, err := sendFrame(ctx, h, plan, n, c.Duration("interval"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("frame %d: %v", n, err), exitError)
		}
		if v != nil {
			ok, p, err := v.check(ctx, summary.FrameID, plan.biased(plan.raster(n)))
			if err != nil {
				return cli.Exit(fmt.Sprintf("frame %d: %v", n, err), exitError)
			}
			summary.Reconstructed = &ok
			summary.Pending = p.Pending
			summary.Refetched = p.Refetched
			failed = failed || !ok
		}
		result.Frames = append(result.Frames, summary)
	}

	if d := c.Duration("linger"); d > 0 {
		logger.Info("lingering for retrievals", map[string]any{"duration": d.String()})
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}

	// Drain the archive queue before reporting its counters.
	err = cs.Close()
	cs = nil
	if err != nil {
		return cli.Exit(fmt.Sprintf("shutdown: %v", err), exitError)
	}
	result.Metrics = collector.Snapshot()

	if err := r.Render(result); err != nil {
		return err
	}
	if failed {
		return cli.Exit("", exitIncomplete)
	}
	return nil
}

func resolvePlan(c *cli.Context) (framePlan, error) {
	kind, err := parsePixelKind(c.Int("bitpix"))
	if err != nil {
		return framePlan{}, err
	}
	codec, err := parseFITSCodec(c.String("fits-codec"))
	if err != nil {
		return framePlan{}, err
	}
	p := framePlan{
		width:    uint32(c.Uint("width")),
		height:   uint32(c.Uint("height")),
		kind:     kind,
		tileCols: uint32(c.Uint("tile-cols")),
		tileRows: uint32(c.Uint("tile-rows")),
		bzero:    c.Float64("bzero"),
		compress: c.Bool("compress"),
		wcs:      c.Bool("wcs"),
		codec:    codec,
		seed:     c.Uint64("seed"),
	}
	if p.width == 0 || p.height == 0 {
		return p, fmt.Errorf("--width and --height must be > 0")
	}
	return p, nil
}

// sendFrame delivers frame n as one complete session.
func sendFrame(ctx context.Context, h *handler.Handler, p framePlan, n int, interval time.Duration) (FrameSummary, error) {
	name := fmt.Sprintf("%s-%04d", h.Name(), n)
	if err := h.Start(ctx, p.header(name)); err != nil {
		return FrameSummary{}, err
	}
	if p.wcs {
		if err := h.TransferWCS(ctx, p.wcsFor(n)); err != nil {
			return FrameSummary{}, err
		}
	}
	if prefs := p.prefs(); prefs != nil {
		if err := h.SetCompressionPrefs(ctx, *prefs); err != nil {
			return FrameSummary{}, err
		}
	}

	chunks := p.chunks(p.raster(n))
	for i, chunk := range chunks {
		if _, err := h.TransferData(ctx, chunk); err != nil {
			return FrameSummary{}, err
		}
		if interval > 0 && i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				return FrameSummary{}, ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	st := h.Status()
	if err := h.Done(ctx); err != nil {
		return FrameSummary{}, err
	}
	return FrameSummary{
		FrameID: st.FrameID,
		Name:    name,
		// HEADER, optional WCS and COMPRESSION, DATA, DONE.
		Events: st.Sequence + 1,
		Chunks: st.Chunks,
	}, nil
}

// verifier reconstructs frames from the memory bus in process.
type verifier struct {
	asm    *display.Assembler
	done   chan verified
	cancel context.CancelFunc
	exited chan error
}

type verified struct {
	progress display.Progress
	tile     types.Tile
}

func startVerifier(ctx context.Context, bus *memory.Bus, addr, name string, codec wire.Codec, logger *log.Logger) (*verifier, error) {
	sub, err := bus.Subscribe("simulate-verify", 4096)
	if err != nil {
		return nil, fmt.Errorf("subscribe verifier: %w", err)
	}
	asm := display.New(display.Options{
		Channel: handler.RetrievalChannel(name),
		Fetcher: retrieval.NewClient(addr, retrieval.WithCodec(codec)),
		Logger:  logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	v := &verifier{
		asm:    asm,
		done:   make(chan verified, 1),
		cancel: cancel,
		exited: make(chan error, 1),
	}
	go func() {
		defer iox.DiscardClose(sub)
		v.exited <- asm.Run(ctx, sub, func(p display.Progress) {
			if !p.Done {
				return
			}
			tile, _ := asm.Tile()
			select {
			case v.done <- verified{progress: p, tile: tile}:
			default:
				logger.Warn("verifier result dropped", map[string]any{"frame_id": p.FrameID})
			}
		})
	}()
	return v, nil
}

// check waits for frameID to complete and compares its raster to want.
func (v *verifier) check(ctx context.Context, frameID string, want types.Tile) (bool, display.Progress, error) {
	timer := time.NewTimer(verifyTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, display.Progress{}, ctx.Err()
		case <-timer.C:
			return false, v.asm.Progress(), fmt.Errorf("timed out waiting for frame %s", frameID)
		case got := <-v.done:
			if got.progress.FrameID != frameID {
				continue
			}
			ok := len(got.progress.Pending) == 0 && tilesEqual(got.tile, want)
			return ok, got.progress, nil
		}
	}
}

func (v *verifier) Close() error {
	v.cancel()
	if err := <-v.exited; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
