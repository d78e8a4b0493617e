package main

import (
    "context"
    "errors"
    "image"
    "os"
    ossignal "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "framelink/pkg/bootstrap"
    "framelink/pkg/config"
    "framelink/pkg/handoff"
    "framelink/pkg/observability"
    "framelink/pkg/protocol/codec"
    "framelink/pkg/signal"
    "framelink/pkg/stream"
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
    if opts.Frames >= 0 { cfg.Producer.Frames = opts.Frames }
    surfaceID := opts.SurfaceID
    if surfaceID == 0 { surfaceID = uint64(os.Getpid()) }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()
    zap.L().Info("framelink-client started", zap.String("app", cfg.AppName), zap.Uint64("surface_id", surfaceID))

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

    sd := stream.NewDisplay(cfg.AppName, drv, cfg.Stream.SlotBytes, cfg.Stream.MaxChannels)
    defer func() { _ = sd.Close() }()
    addr := bootstrap.Address(tr, cfg.Display.SocketDir, cfg.Display.Name)
    prod, err := handoff.NewProducer(tr, addr, sd, nil, wsys.WithBuilder(signal.NewBuilder(reg, format)), wsys.WithQueueDepth(cfg.Signal.QueueDepth))
    if err != nil {
        zap.L().Error("producer", zap.Error(err))
        return 1
    }
    defer func() { _ = prod.Close() }()

    ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    ps, err := prod.CreateWindowSurface(cctx, surfaceID, cfg.Producer.Width, cfg.Producer.Height)
    cancel()
    if err != nil {
        zap.L().Error("create window surface", zap.String("addr", addr), zap.Error(err))
        return 1
    }

    n, err := present(ctx, prod, ps, cfg.Producer)
    zap.L().Info("client stopped", zap.Uint64("conn_id", ps.ConnectionID()), zap.Int("frames", n), zap.Error(err))
    if err != nil && !errors.Is(err, context.Canceled) { return 1 }
    return 0
}

// present runs dispatch, render and present until pc.Frames frames went out,
// the context ends or the compositor goes away.
func present(ctx context.Context, prod *handoff.Producer, ps *handoff.ProducerSurface, pc config.ProducerConfig) (int, error) {
    img := image.NewRGBA(image.Rect(0, 0, pc.Width, pc.Height))
    tick := time.NewTicker(time.Duration(pc.FrameIntervalMS) * time.Millisecond)
    defer tick.Stop()
    n := 0
    for pc.Frames == 0 || n < pc.Frames {
        select {
        case <-ctx.Done():
            return n, ctx.Err()
        case <-tick.C:
        }
        prod.DispatchEvents()
        renderPattern(img, n)
        if err := ps.Present(frameOf(img)); err != nil { return n, err }
        n++
        if n%120 == 0 { zap.L().Debug("presented", zap.Int("frames", n)) }
    }
    return n, nil
}
