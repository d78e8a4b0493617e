package config

import (
    "os"
    "path/filepath"
    "testing"
)

func TestLoadDefaults(t *testing.T) {
    t.Setenv("FRAMELINK_CONFIG", "")
    cfg, err := Load("")
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Display.Name != "framelink-0" || cfg.Stream.Driver != "shm" || cfg.Signal.Format != "cbor" {
        t.Fatalf("unexpected defaults: %+v", cfg)
    }
}

func TestLoadFileAndEnv(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "framelink.yaml")
    yaml := "display:\n  name: test-display\n  transport: MEM\nsignal:\n  format: json\nproducer:\n  width: 64\n  height: 32\n"
    if err := os.WriteFile(p, []byte(yaml), 0o644); err != nil { t.Fatalf("write: %v", err) }
    t.Setenv("FRAMELINK_LOG_LEVEL", "debug")
    cfg, err := Load(p)
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Display.Name != "test-display" || cfg.Display.Transport != "mem" { t.Fatalf("display %+v", cfg.Display) }
    if cfg.Signal.Format != "json" || cfg.Producer.Width != 64 { t.Fatalf("file values not applied: %+v", cfg) }
    if cfg.Log.Level != "debug" { t.Fatalf("env override not applied: %q", cfg.Log.Level) }
}

func TestValidateRejects(t *testing.T) {
    cases := map[string]func(c *Config){
        "level":  func(c *Config) { c.Log.Level = "loud" },
        "format": func(c *Config) { c.Signal.Format = "xml" },
        "slot":   func(c *Config) { c.Stream.SlotBytes = 16 },
        "name":   func(c *Config) { c.Display.Name = " " },
    }
    for name, mut := range cases {
        c := Default()
        mut(c)
        if err := c.validate(); err == nil { t.Fatalf("%s: expected error", name) }
    }
}
