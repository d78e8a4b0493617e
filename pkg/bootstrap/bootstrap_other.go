//go:build !linux

package bootstrap

import (
    "fmt"
    "os"

    "framelink/pkg/driver"
    "framelink/pkg/transport"
)

func newUnixTransport() (transport.Transport, error) { return nil, fmt.Errorf("unix transport is not supported on this platform") }

func newShmDriver() (driver.Driver, error) { return nil, fmt.Errorf("shm driver is not supported on this platform") }

func defaultSocketDir() string { return os.TempDir() }
