package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/mediaengine/block"
	"github.com/zsiec/mediaengine/container"
	"github.com/zsiec/mediaengine/container/containertest"
	"github.com/zsiec/mediaengine/engine"
	"github.com/zsiec/mediaengine/engineconfig"
	"github.com/zsiec/mediaengine/renderer"
	"github.com/zsiec/mediaengine/state"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	blockCount := envIntOr("DEMO_BLOCKS", 30)
	loop := os.Getenv("DEMO_LOOP") != ""

	slog.Info("mediaengine demo starting", "blocks", blockCount, "loop", loop)

	connectors := state.NewRegistry()
	connectors.Add(&logConnector{})

	cfg := engineconfig.Default()
	eng := engine.New(cfg, func() (container.Container, error) {
		f := containertest.New()
		f.BlockCount = blockCount
		f.BlockDuration = 200 * time.Millisecond
		return f, nil
	}, renderer.FactoryFunc(newLogRenderer), connectors, nil)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	g.Go(func() error {
		if err := eng.Open(ctx, container.Source{URL: "demo://synthetic"}, container.Config{}, loop).Wait(ctx); err != nil {
			return err
		}
		return eng.Play(ctx).Wait(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("demo exited with error", "error", err)
		os.Exit(1)
	}
}

// logRenderer is a platform Renderer that logs instead of presenting to a
// real surface or audio device, standing in for the native sinks this
// module never implements (spec §1 Non-goals).
type logRenderer struct {
	streamType block.StreamType
}

func newLogRenderer(t block.StreamType) (renderer.Renderer, error) {
	return &logRenderer{streamType: t}, nil
}

func (r *logRenderer) OnStarting() error {
	slog.Info("renderer starting", "stream", r.streamType.String())
	return nil
}
func (r *logRenderer) OnPlay()  { slog.Debug("renderer play", "stream", r.streamType.String()) }
func (r *logRenderer) OnPause() { slog.Debug("renderer pause", "stream", r.streamType.String()) }
func (r *logRenderer) OnStop()  { slog.Debug("renderer stop", "stream", r.streamType.String()) }
func (r *logRenderer) OnClose() { slog.Debug("renderer close", "stream", r.streamType.String()) }
func (r *logRenderer) OnSeek()  { slog.Debug("renderer seek", "stream", r.streamType.String()) }

func (r *logRenderer) Render(blk *block.Block, position time.Duration) {
	slog.Debug("render", "stream", r.streamType.String(), "position", position, "block_start", blk.StartTime)
}

func (r *logRenderer) Update(position time.Duration) {}

// logConnector reports the events an embedding platform would otherwise
// wire up to its own UI; here it just logs, grounded in the teacher's
// preference for embedding NopConnector and overriding only what's needed.
type logConnector struct {
	state.NopConnector
}

func (c *logConnector) OnMediaStateChanged(old, new state.MediaState) {
	slog.Info("state changed", "from", old.String(), "to", new.String())
}

func (c *logConnector) OnMediaOpened() { slog.Info("media opened") }
func (c *logConnector) OnMediaClosed() { slog.Info("media closed") }
func (c *logConnector) OnMediaFailed(err state.MediaError) {
	slog.Error("media failed", "kind", err.Kind, "message", err.Message)
}
func (c *logConnector) OnMediaEnded()          { slog.Info("media ended") }
func (c *logConnector) OnBufferingStarted()    { slog.Info("buffering started") }
func (c *logConnector) OnBufferingEnded()      { slog.Info("buffering ended") }

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
