package main

import "flag"

// Options holds CLI options for the compositor.
type Options struct {
    ConfigPath string
    Display    string
    Snapshot   string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("framelink-server", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.StringVar(&opts.Display, "display", "", "Display name (overrides display.name)")
    fs.StringVar(&opts.Snapshot, "snapshot", "", "BMP snapshot path (overrides compositor.snapshot_path)")
    _ = fs.Parse(args)
    return opts
}
