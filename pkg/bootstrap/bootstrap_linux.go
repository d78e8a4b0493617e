//go:build linux

package bootstrap

import (
    "os"

    "framelink/pkg/driver"
    "framelink/pkg/driver/shm"
    "framelink/pkg/transport"
    "framelink/pkg/transport/unixsock"
)

func newUnixTransport() (transport.Transport, error) { return unixsock.New(), nil }

func newShmDriver() (driver.Driver, error) { return shm.New(), nil }

func defaultSocketDir() string {
    if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" { return d }
    return os.TempDir()
}
