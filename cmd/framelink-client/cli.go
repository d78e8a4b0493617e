package main

import "flag"

// Options holds CLI options for a rendering client.
type Options struct {
    ConfigPath string
    Display    string
    Frames     int
    SurfaceID  uint64
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("framelink-client", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.StringVar(&opts.Display, "display", "", "Display name (overrides display.name)")
    fs.IntVar(&opts.Frames, "frames", -1, "Frames to present, 0 = forever (overrides producer.frames)")
    fs.Uint64Var(&opts.SurfaceID, "surface", 0, "Native window id, the process id when 0")
    _ = fs.Parse(args)
    return opts
}
