// Package codec encodes signal message bodies. A body is one format byte
// followed by the encoded value, so a receiver decodes whatever format the
// sender picked.
package codec

import "fmt"

// Codec marshals typed values.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Format is the on-wire body encoding indicator.
type Format uint8

const (
    FormatNone Format = iota
    FormatJSON
    FormatCBOR
    FormatProto
)

func (f Format) String() string {
    switch f {
    case FormatJSON:
        return "json"
    case FormatCBOR:
        return "cbor"
    case FormatProto:
        return "proto"
    default:
        return "none"
    }
}

// ParseFormat maps a config string to a Format.
func ParseFormat(s string) (Format, error) {
    switch s {
    case "json":
        return FormatJSON, nil
    case "cbor", "":
        return FormatCBOR, nil
    case "proto", "protobuf":
        return FormatProto, nil
    default:
        return FormatNone, fmt.Errorf("unknown body format %q", s)
    }
}

// Registry maps formats to codecs.
type Registry struct{ byFormat map[Format]Codec }

// NewRegistry returns a registry holding the JSON, CBOR and Protobuf codecs.
func NewRegistry() (*Registry, error) {
    c, err := CBOR()
    if err != nil { return nil, err }
    r := &Registry{byFormat: make(map[Format]Codec)}
    r.Register(FormatJSON, JSON())
    r.Register(FormatCBOR, c)
    r.Register(FormatProto, Proto())
    return r, nil
}

// Register sets the codec used for f.
func (r *Registry) Register(f Format, c Codec) { r.byFormat[f] = c }

// Get returns the codec for f, or nil.
func (r *Registry) Get(f Format) Codec { return r.byFormat[f] }

// Encode marshals v with the codec for f and prefixes the format byte.
func (r *Registry) Encode(f Format, v any) ([]byte, error) {
    c := r.Get(f)
    if c == nil { return nil, fmt.Errorf("codec: no codec for format %s", f) }
    b, err := c.Marshal(v)
    if err != nil { return nil, err }
    out := make([]byte, 1+len(b))
    out[0] = byte(f)
    copy(out[1:], b)
    return out, nil
}

// Decode reads the format byte of body and unmarshals the rest into v.
func (r *Registry) Decode(body []byte, v any) (Format, error) {
    if len(body) == 0 { return FormatNone, fmt.Errorf("codec: empty body") }
    f := Format(body[0])
    c := r.Get(f)
    if c == nil { return f, fmt.Errorf("codec: no codec for format %d", body[0]) }
    if err := c.Unmarshal(body[1:], v); err != nil { return f, err }
    return f, nil
}
