// Package signal defines the out-of-band messages that accompany a frame
// channel: connection setup, the server's reply, and per-frame
// notifications. A message travels as one transport packet.
package signal

import (
    "fmt"

    "framelink/pkg/handle"
    "framelink/pkg/protocol/codec"
    "framelink/pkg/transport"
)

// Type is the message kind.
type Type uint8

const (
    TypeUnknown Type = iota
    TypeConnectionEstablished
    TypeConnectionAccepted
    TypeConnectionRejected
    TypeFrameProduced
)

func (t Type) String() string {
    switch t {
    case TypeConnectionEstablished:
        return "connection-established"
    case TypeConnectionAccepted:
        return "connection-accepted"
    case TypeConnectionRejected:
        return "connection-rejected"
    case TypeFrameProduced:
        return "frame-produced"
    default:
        return "unknown"
    }
}

// SurfaceInfo describes the producer surface behind a new connection.
type SurfaceInfo struct {
    SurfaceID uint64 `json:"surface_id" cbor:"surface_id"`
    Width     int    `json:"width" cbor:"width"`
    Height    int    `json:"height" cbor:"height"`
}

func (s *SurfaceInfo) Fields() map[string]any {
    return map[string]any{"surface_id": float64(s.SurfaceID), "width": float64(s.Width), "height": float64(s.Height)}
}

func (s *SurfaceInfo) SetFields(m map[string]any) error {
    id, err := number(m, "surface_id")
    if err != nil { return err }
    w, err := number(m, "width")
    if err != nil { return err }
    h, err := number(m, "height")
    if err != nil { return err }
    s.SurfaceID, s.Width, s.Height = uint64(id), int(w), int(h)
    return nil
}

// Rejection explains why the server refused a connection.
type Rejection struct {
    Code   int    `json:"code" cbor:"code"`
    Reason string `json:"reason" cbor:"reason"`
}

func (r *Rejection) Fields() map[string]any {
    return map[string]any{"code": float64(r.Code), "reason": r.Reason}
}

func (r *Rejection) SetFields(m map[string]any) error {
    c, err := number(m, "code")
    if err != nil { return err }
    reason, _ := m["reason"].(string)
    r.Code, r.Reason = int(c), reason
    return nil
}

func number(m map[string]any, k string) (float64, error) {
    v, ok := m[k].(float64)
    if !ok { return 0, fmt.Errorf("signal: field %q missing or not a number", k) }
    return v, nil
}

// Message is a decoded signal. Body holds the encoded body, if any.
type Message struct {
    Header Header
    Body   []byte
    Handle handle.Handle
}

// Encode packs m into a transport message, moving m.Handle into it.
func (m *Message) Encode() (transport.Message, error) {
    if m.Handle.Valid() { m.Header.Flags |= FlagHandle }
    m.Header.Version = Version
    m.Header.BodyLen = uint32(len(m.Body))
    if HeaderSize+len(m.Body) > transport.MaxPayload { return transport.Message{}, fmt.Errorf("signal: body too large (%d)", len(m.Body)) }
    buf := make([]byte, HeaderSize+len(m.Body))
    m.Header.put(buf)
    copy(buf[HeaderSize:], m.Body)
    return transport.Message{Payload: buf, Handle: m.Handle.Take()}, nil
}

// Decode parses a transport message, taking ownership of its handle. On
// error the handle is closed.
func Decode(tm transport.Message) (Message, error) {
    var m Message
    if err := m.Header.UnmarshalBinary(tm.Payload); err != nil {
        _ = tm.Handle.Close()
        return Message{}, err
    }
    if int(m.Header.BodyLen) != len(tm.Payload)-HeaderSize {
        _ = tm.Handle.Close()
        return Message{}, fmt.Errorf("signal: body length %d, packet carries %d", m.Header.BodyLen, len(tm.Payload)-HeaderSize)
    }
    if (m.Header.Flags&FlagHandle != 0) != tm.Handle.Valid() {
        _ = tm.Handle.Close()
        return Message{}, fmt.Errorf("signal: %s handle flag does not match packet", m.Header.Type)
    }
    if m.Header.BodyLen > 0 { m.Body = tm.Payload[HeaderSize:] }
    m.Handle = tm.Handle.Take()
    return m, nil
}

// Builder creates messages with bodies encoded in one format.
type Builder struct {
    reg    *codec.Registry
    format codec.Format
}

func NewBuilder(reg *codec.Registry, f codec.Format) *Builder { return &Builder{reg: reg, format: f} }

func (b *Builder) Format() codec.Format { return b.format }

// ConnectionEstablished carries h to the server.
func (b *Builder) ConnectionEstablished(h handle.Handle, info SurfaceInfo) (Message, error) {
    body, err := b.reg.Encode(b.format, &info)
    if err != nil {
        _ = h.Close()
        return Message{}, err
    }
    return Message{Header: Header{Type: TypeConnectionEstablished}, Body: body, Handle: h}, nil
}

func (b *Builder) ConnectionAccepted(connID uint64) Message {
    return Message{Header: Header{Type: TypeConnectionAccepted, ConnID: connID}}
}

func (b *Builder) ConnectionRejected(code int, reason string) (Message, error) {
    body, err := b.reg.Encode(b.format, &Rejection{Code: code, Reason: reason})
    if err != nil { return Message{}, err }
    return Message{Header: Header{Type: TypeConnectionRejected}, Body: body}, nil
}

func (b *Builder) FrameProduced(connID, seq uint64) Message {
    return Message{Header: Header{Type: TypeFrameProduced, ConnID: connID, Seq: seq}}
}

// SurfaceInfo decodes the body of a ConnectionEstablished message.
func (b *Builder) SurfaceInfo(m Message) (SurfaceInfo, error) {
    var info SurfaceInfo
    if len(m.Body) == 0 { return info, fmt.Errorf("signal: %s without body", m.Header.Type) }
    _, err := b.reg.Decode(m.Body, &info)
    return info, err
}

// Rejection decodes the body of a ConnectionRejected message.
func (b *Builder) Rejection(m Message) (Rejection, error) {
    var r Rejection
    if len(m.Body) == 0 { return r, fmt.Errorf("signal: %s without body", m.Header.Type) }
    _, err := b.reg.Decode(m.Body, &r)
    return r, err
}
