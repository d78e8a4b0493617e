package surface

import (
    "bytes"
    "errors"
    "image"
    "testing"

    "framelink/pkg/driver"
    "framelink/pkg/driver/mem"
    "framelink/pkg/status"
    "framelink/pkg/stream"
    "framelink/pkg/texture"
)

const w, h = 2, 2

func frame(v byte) driver.Frame {
    return driver.Frame{Width: w, Height: h, Pix: bytes.Repeat([]byte{v}, driver.Size(w, h))}
}

type pair struct {
    prod, cons *Binding
    pool       *texture.Pool
    seqs       []uint64
}

func newPair(t *testing.T) *pair {
    t.Helper()
    drv := mem.New()
    pd := stream.NewDisplay("client", drv, driver.Size(w, h), 0)
    cd := stream.NewDisplay("server", drv, driver.Size(w, h), 0)
    p := &pair{pool: texture.NewPool(0)}
    pep, err := pd.CreateEndpoint(stream.Producer)
    if err != nil { t.Fatalf("create: %v", err) }
    hd, err := pep.ExportTransportHandle()
    if err != nil { t.Fatalf("export: %v", err) }
    cep, err := cd.ImportFromTransportHandle(hd)
    if err != nil { t.Fatalf("import: %v", err) }
    notify := NotifierFunc(func(seq uint64) error { p.seqs = append(p.seqs, seq); return nil })
    if p.prod, err = BindProducer(pep, NativeHandle{Kind: NativeWindow, ID: 7, Width: w, Height: h}, WithNotifier(notify)); err != nil {
        t.Fatalf("bind producer: %v", err)
    }
    if p.cons, err = BindConsumer(cep, p.pool); err != nil { t.Fatalf("bind consumer: %v", err) }
    return p
}

func TestFrameCollapsing(t *testing.T) {
    p := newPair(t)
    for i := 1; i <= 3; i++ {
        tok, err := p.prod.Present(frame(byte(i)))
        if err != nil { t.Fatalf("present %d: %v", i, err) }
        if tok.Seq != uint64(i) { t.Fatalf("seq = %d want %d", tok.Seq, i) }
    }
    if len(p.seqs) != 3 || p.seqs[2] != 3 { t.Fatalf("notifications = %v", p.seqs) }

    tok, fresh, err := p.cons.AcquireLatest()
    if err != nil || !fresh || tok.Seq != 3 { t.Fatalf("acquire: tok=%v fresh=%v err=%v", tok, fresh, err) }
    p.cons.Texture().View(func(img *image.RGBA) {
        if img == nil || img.Pix[0] != 3 { t.Fatalf("texture does not hold frame 3") }
    })

    tok, fresh, err = p.cons.AcquireLatest()
    if err != nil || fresh || tok.Seq != 3 { t.Fatalf("second acquire must be NoNewFrame: tok=%v fresh=%v err=%v", tok, fresh, err) }
}

func TestStaleAfterDestroy(t *testing.T) {
    p := newPair(t)
    if _, err := p.prod.Present(frame(1)); err != nil { t.Fatalf("present: %v", err) }
    if err := p.prod.Destroy(); err != nil { t.Fatalf("destroy: %v", err) }
    if _, err := p.prod.Present(frame(2)); !errors.Is(err, status.ErrStaleBinding) {
        t.Fatalf("present after destroy: %v", err)
    }
    if _, _, err := p.cons.AcquireLatest(); !errors.Is(err, status.ErrStaleBinding) {
        t.Fatalf("acquire after producer destroy: %v", err)
    }
    if err := p.cons.Destroy(); err != nil { t.Fatalf("destroy consumer: %v", err) }
    if p.pool.Live() != 0 { t.Fatalf("texture not released") }
    if _, _, err := p.cons.AcquireLatest(); !errors.Is(err, status.ErrStaleBinding) {
        t.Fatalf("acquire after consumer destroy: %v", err)
    }
}

func TestAcquireAfterConsumerEndpointDestroy(t *testing.T) {
    p := newPair(t)
    if _, err := p.prod.Present(frame(1)); err != nil { t.Fatalf("present: %v", err) }
    if err := p.cons.Endpoint().Destroy(); err != nil { t.Fatalf("destroy endpoint: %v", err) }
    if _, _, err := p.cons.AcquireLatest(); !errors.Is(err, status.ErrStaleBinding) {
        t.Fatalf("acquire after endpoint destroy: %v", err)
    }
    // The producer side is unaffected by the consumer going away.
    if _, err := p.prod.Present(frame(2)); err != nil { t.Fatalf("present after consumer destroy: %v", err) }
}

func TestBindProducerFailures(t *testing.T) {
    d := stream.NewDisplay("d", mem.New(), 16, 0)
    ep, _ := d.CreateEndpoint(stream.Producer)
    if _, err := BindProducer(ep, NativeHandle{Kind: NativePixmap}); !errors.Is(err, status.ErrUnsupportedNativeType) {
        t.Fatalf("pixmap: %v", err)
    }
    b, err := BindProducer(ep, NativeHandle{Kind: NativePixmap}, WithSupportedKinds(NativeWindow, NativePixmap))
    if err != nil { t.Fatalf("pixmap with support: %v", err) }
    if _, err := BindProducer(ep, NativeHandle{Kind: NativeWindow}); !errors.Is(err, stream.ErrAlreadyBound) {
        t.Fatalf("second bind: %v", err)
    }
    cons, _ := d.CreateEndpoint(stream.Consumer)
    if _, err := BindProducer(cons, NativeHandle{Kind: NativeWindow}); !errors.Is(err, stream.ErrWrongRole) {
        t.Fatalf("consumer endpoint: %v", err)
    }
    if _, _, err := b.AcquireLatest(); !errors.Is(err, stream.ErrWrongRole) { t.Fatalf("acquire on producer: %v", err) }
}

func TestBindConsumerPoolExhausted(t *testing.T) {
    d := stream.NewDisplay("d", mem.New(), 16, 0)
    ep, _ := d.CreateEndpoint(stream.Consumer)
    pool := texture.NewPool(1)
    if _, err := pool.Acquire(); err != nil { t.Fatalf("acquire: %v", err) }
    if _, err := BindConsumer(ep, pool); !errors.Is(err, status.ErrResourceExhausted) {
        t.Fatalf("expected exhausted, got %v", err)
    }
    if err := ep.Claim(); err != nil { t.Fatalf("failed bind must release the claim: %v", err) }
}
