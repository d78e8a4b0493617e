//go:build linux

package unixsock

import (
    "context"
    "errors"
    "io"
    "os"
    "path/filepath"
    "testing"
    "time"

    "golang.org/x/sys/unix"

    "framelink/pkg/handle"
    "framelink/pkg/transport"
)

func pair(t *testing.T) (transport.Session, transport.Session) {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    t.Cleanup(cancel)
    path := filepath.Join(t.TempDir(), "display-0")
    tr := New()
    l, err := tr.Listen(ctx, path)
    if err != nil { t.Fatalf("listen: %v", err) }
    t.Cleanup(func() { _ = l.Close() })
    cli, err := tr.Dial(ctx, path, transport.PeerInfo{ID: "client"})
    if err != nil { t.Fatalf("dial: %v", err) }
    srv, err := l.Accept(ctx)
    if err != nil { t.Fatalf("accept: %v", err) }
    t.Cleanup(func() { _ = cli.Close(); _ = srv.Close() })
    return cli, srv
}

func TestPassDescriptor(t *testing.T) {
    cli, srv := pair(t)
    f, err := os.CreateTemp(t.TempDir(), "payload")
    if err != nil { t.Fatalf("temp: %v", err) }
    if _, err := f.WriteString("frame"); err != nil { t.Fatalf("write: %v", err) }
    fd, err := unix.Dup(int(f.Fd()))
    if err != nil { t.Fatalf("dup: %v", err) }
    _ = f.Close()

    h := handle.FromFD(fd)
    if err := cli.Send(transport.Message{Payload: []byte("hello"), Handle: h.Take()}); err != nil { t.Fatalf("send: %v", err) }
    m, err := srv.Recv()
    if err != nil { t.Fatalf("recv: %v", err) }
    defer m.Handle.Close()
    if string(m.Payload) != "hello" { t.Fatalf("payload = %q", m.Payload) }
    rfd, ok := m.Handle.FD()
    if !ok { t.Fatalf("expected fd handle, got %s", m.Handle) }
    buf := make([]byte, 5)
    if _, err := unix.Pread(rfd, buf, 0); err != nil || string(buf) != "frame" { t.Fatalf("read through fd: %q %v", buf, err) }
}

func TestBoundariesAndEOF(t *testing.T) {
    cli, srv := pair(t)
    for _, p := range []string{"a", "bb", "ccc"} {
        if err := cli.Send(transport.Message{Payload: []byte(p)}); err != nil { t.Fatalf("send: %v", err) }
    }
    for _, want := range []string{"a", "bb", "ccc"} {
        m, err := srv.Recv()
        if err != nil || string(m.Payload) != want { t.Fatalf("recv = %q %v want %q", m.Payload, err, want) }
    }
    _ = cli.Close()
    if _, err := srv.Recv(); !errors.Is(err, io.EOF) { t.Fatalf("expected EOF, got %v", err) }
}

func TestTokenHandleRejected(t *testing.T) {
    cli, _ := pair(t)
    if err := cli.Send(transport.Message{Payload: []byte("x"), Handle: handle.FromToken("t")}); err == nil {
        t.Fatalf("token handle must not cross processes")
    }
}
