package main

import (
    "context"
    "errors"
    "os"
    ossignal "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "framelink/pkg/bootstrap"
    "framelink/pkg/compose"
    "framelink/pkg/config"
    "framelink/pkg/handoff"
    "framelink/pkg/memkv"
    "framelink/pkg/observability"
    "framelink/pkg/protocol/codec"
    "framelink/pkg/signal"
    "framelink/pkg/stats"
    "framelink/pkg/stream"
    "framelink/pkg/texture"
    "framelink/pkg/wsys"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }
    if opts.Display != "" { cfg.Display.Name = opts.Display }
    if opts.Snapshot != "" { cfg.Compositor.SnapshotPath = opts.Snapshot }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("framelink-server started", zap.String("app", cfg.AppName))
    zap.L().Info("effective configuration", zap.Any("config", cfg))

    tr, err := bootstrap.NewTransport(cfg.Display.Transport)
    if err != nil {
        zap.L().Error("transport", zap.Error(err))
        return 1
    }
    drv, err := bootstrap.NewDriver(cfg.Stream.Driver)
    if err != nil {
        zap.L().Error("driver", zap.Error(err))
        return 1
    }
    reg, err := codec.NewRegistry()
    if err != nil {
        zap.L().Error("codec registry", zap.Error(err))
        return 1
    }
    format, err := codec.ParseFormat(cfg.Signal.Format)
    if err != nil {
        zap.L().Error("signal format", zap.Error(err))
        return 1
    }
    b := signal.NewBuilder(reg, format)

    kv := memkv.New(memkv.Options{})
    defer kv.Close()
    st := stats.NewStore(kv, time.Duration(cfg.Stats.RetainClosedMS)*time.Millisecond)

    sd := stream.NewDisplay(cfg.Display.Name, drv, cfg.Stream.SlotBytes, cfg.Stream.MaxChannels)
    defer func() { _ = sd.Close() }()
    coord := handoff.NewCoordinator(sd, texture.NewPool(cfg.Stream.MaxTextures), b, handoff.WithStats(st))
    defer coord.Close()

    ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    addr := bootstrap.Address(tr, cfg.Display.SocketDir, cfg.Display.Name)
    srv, err := wsys.Listen(ctx, tr, addr, coord, wsys.WithBuilder(b), wsys.WithQueueDepth(cfg.Signal.QueueDepth))
    if err != nil {
        zap.L().Error("listen failed", zap.String("addr", addr), zap.Error(err))
        return 1
    }
    defer func() { _ = srv.Close() }()

    comp := compose.New(cfg.Compositor.Width, cfg.Compositor.Height)
    zap.L().Info("compositor is running; press Ctrl+C to exit", zap.String("addr", addr), zap.String("driver", drv.Name()), zap.String("format", format.String()))
    repaint(ctx, srv, coord, comp, cfg.Compositor)

    sum := st.Summary()
    zap.L().Info("compositor stopped", zap.Uint64("accepted", sum.Accepted), zap.Uint64("rejected", sum.Rejected), zap.Uint64("disconnected", sum.Disconnected))
    for _, cs := range st.List() {
        zap.L().Info("connection stats", zap.Any("conn", cs))
    }
    return 0
}

// repaint waits for windowing events and recomposites after every batch.
func repaint(ctx context.Context, srv *wsys.Server, coord *handoff.Coordinator, comp *compose.Compositor, cc config.CompositorConfig) {
    every := cc.SnapshotEvery
    if every <= 0 { every = 1 }
    for frames := 0; ; {
        if _, err := srv.WaitEvents(ctx); err != nil {
            if !errors.Is(err, context.Canceled) && !errors.Is(err, wsys.ErrClosed) {
                zap.L().Warn("event loop stopped", zap.Error(err))
            }
            return
        }
        drawn := coord.Composite(comp)
        frames++
        if cc.SnapshotPath == "" || frames%every != 0 { continue }
        if err := comp.WriteSnapshot(cc.SnapshotPath); err != nil {
            zap.L().Warn("snapshot failed", zap.String("path", cc.SnapshotPath), zap.Error(err))
            continue
        }
        zap.L().Debug("snapshot written", zap.String("path", cc.SnapshotPath), zap.Int("surfaces", drawn), zap.Int("repaint", frames))
    }
}
