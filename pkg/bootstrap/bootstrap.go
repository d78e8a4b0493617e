// Package bootstrap builds transports and render drivers from their
// configured kind names.
package bootstrap

import (
    "path/filepath"
    "strings"

    "framelink/pkg/driver"
    dmem "framelink/pkg/driver/mem"
    "framelink/pkg/transport"
    tmem "framelink/pkg/transport/mem"
)

// NewTransport constructs a Transport by kind name.
func NewTransport(kind string) (transport.Transport, error) {
    switch strings.ToLower(strings.TrimSpace(kind)) {
    case "mem", "inproc":
        return tmem.New(), nil
    case "unix", "unixsock", "uds":
        return newUnixTransport()
    default:
        return nil, ErrUnknownKind("transport " + kind)
    }
}

// NewDriver constructs a render driver by kind name.
func NewDriver(kind string) (driver.Driver, error) {
    switch strings.ToLower(strings.TrimSpace(kind)) {
    case "mem", "inproc":
        return dmem.New(), nil
    case "shm", "memfd":
        return newShmDriver()
    default:
        return nil, ErrUnknownKind("driver " + kind)
    }
}

// Address returns what producers dial to reach display name over tr.
// Socket transports live under dir; in-process ones use the bare name.
func Address(tr transport.Transport, dir, name string) string {
    if tr.Kind() != transport.KindUnix || filepath.IsAbs(name) { return name }
    if dir == "" { dir = defaultSocketDir() }
    return filepath.Join(dir, name)
}

// ErrUnknownKind reports an unrecognised kind name.
type ErrUnknownKind string
func (e ErrUnknownKind) Error() string { return "unknown " + string(e) }
