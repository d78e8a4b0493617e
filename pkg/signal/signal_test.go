package signal

import (
    "errors"
    "testing"

    "framelink/pkg/handle"
    "framelink/pkg/protocol/codec"
    "framelink/pkg/transport"
)

func builder(t *testing.T, f codec.Format) *Builder {
    t.Helper()
    reg, err := codec.NewRegistry()
    if err != nil { t.Fatalf("registry: %v", err) }
    return NewBuilder(reg, f)
}

func TestHeaderRoundtrip(t *testing.T) {
    h := Header{Version: Version, Type: TypeFrameProduced, Flags: FlagHandle, ConnID: 0x1122334455667788, Seq: 42, BodyLen: 7}
    b, err := h.MarshalBinary()
    if err != nil { t.Fatalf("marshal: %v", err) }
    if len(b) != HeaderSize { t.Fatalf("header size = %d", len(b)) }
    var h2 Header
    if err := h2.UnmarshalBinary(b); err != nil { t.Fatalf("unmarshal: %v", err) }
    if h2 != h { t.Fatalf("headers differ: %#v vs %#v", h2, h) }
    b[0] = 0
    if err := h2.UnmarshalBinary(b); !errors.Is(err, ErrBadMagic) { t.Fatalf("bad magic: %v", err) }
    if err := h2.UnmarshalBinary(b[:10]); !errors.Is(err, ErrShortHeader) { t.Fatalf("short: %v", err) }
}

func TestEstablishedAllFormats(t *testing.T) {
    for _, f := range []codec.Format{codec.FormatCBOR, codec.FormatJSON, codec.FormatProto} {
        b := builder(t, f)
        m, err := b.ConnectionEstablished(handle.FromToken("chan"), SurfaceInfo{SurfaceID: 9, Width: 640, Height: 480})
        if err != nil { t.Fatalf("%s build: %v", f, err) }
        tm, err := m.Encode()
        if err != nil { t.Fatalf("%s encode: %v", f, err) }
        if m.Handle.Valid() { t.Fatalf("encode must move the handle") }
        got, err := Decode(tm)
        if err != nil { t.Fatalf("%s decode: %v", f, err) }
        if got.Header.Type != TypeConnectionEstablished || !got.Handle.Valid() { t.Fatalf("%s header %+v", f, got.Header) }
        info, err := builder(t, codec.FormatJSON).SurfaceInfo(got)
        if err != nil { t.Fatalf("%s body: %v", f, err) }
        if info.SurfaceID != 9 || info.Width != 640 || info.Height != 480 { t.Fatalf("%s info %+v", f, info) }
    }
}

func TestRejectedAndFrameProduced(t *testing.T) {
    b := builder(t, codec.FormatCBOR)
    m, err := b.ConnectionRejected(2, "invalid surface")
    if err != nil { t.Fatalf("build: %v", err) }
    tm, _ := m.Encode()
    got, err := Decode(tm)
    if err != nil { t.Fatalf("decode: %v", err) }
    r, err := b.Rejection(got)
    if err != nil || r.Code != 2 || r.Reason != "invalid surface" { t.Fatalf("rejection %+v %v", r, err) }

    fp := b.FrameProduced(5, 3)
    tm, _ = fp.Encode()
    got, err = Decode(tm)
    if err != nil { t.Fatalf("decode: %v", err) }
    if got.Header.ConnID != 5 || got.Header.Seq != 3 || got.Body != nil { t.Fatalf("frame produced %+v", got.Header) }
}

func TestDecodeRejectsMismatchedHandle(t *testing.T) {
    fp := builder(t, codec.FormatCBOR).FrameProduced(1, 1)
    tm, _ := fp.Encode()
    tm.Handle = handle.FromToken("smuggled")
    if _, err := Decode(tm); err == nil { t.Fatalf("unexpected handle must be rejected") }
    if _, err := Decode(transport.Message{Payload: tm.Payload[:HeaderSize-1]}); err == nil { t.Fatalf("short packet must fail") }
}

type recordSender struct{ msgs []Message }

func (r *recordSender) SendSignal(m Message) error { r.msgs = append(r.msgs, m); return nil }

func TestNotifierOrderAndOnce(t *testing.T) {
    rs := &recordSender{}
    n := NewNotifier(rs, builder(t, codec.FormatCBOR))
    if err := n.NotifyConnectionEstablished(handle.FromToken("c"), SurfaceInfo{SurfaceID: 1}); err != nil { t.Fatalf("established: %v", err) }
    if err := n.NotifyConnectionEstablished(handle.FromToken("c"), SurfaceInfo{}); !errors.Is(err, ErrAlreadyEstablished) {
        t.Fatalf("second established: %v", err)
    }
    n.SetConnectionID(4)
    for seq := uint64(1); seq <= 3; seq++ {
        if err := n.FrameProduced(seq); err != nil { t.Fatalf("frame %d: %v", seq, err) }
    }
    if len(rs.msgs) != 4 { t.Fatalf("sent %d messages", len(rs.msgs)) }
    for i, m := range rs.msgs[1:] {
        if m.Header.Type != TypeFrameProduced || m.Header.ConnID != 4 || m.Header.Seq != uint64(i+1) { t.Fatalf("msg %d = %+v", i, m.Header) }
    }
}
