package codec

import (
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// Proto returns a deterministic Protocol Buffers codec. Values that are not
// proto messages are carried as a structpb.Struct when they implement
// Fielder.
func Proto() Codec {
    return protoCodec{mo: proto.MarshalOptions{Deterministic: true}, uo: proto.UnmarshalOptions{DiscardUnknown: true}}
}

// Fielder converts a value to and from a flat field map, which is how plain
// Go structs travel in the Protobuf format.
type Fielder interface {
    Fields() map[string]any
    SetFields(map[string]any) error
}

func (p protoCodec) ContentType() string { return "application/x-protobuf" }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    switch m := v.(type) {
    case proto.Message:
        return p.mo.Marshal(m)
    case Fielder:
        s, err := structpb.NewStruct(m.Fields())
        if err != nil { return nil, fmt.Errorf("protobuf: %w", err) }
        return p.mo.Marshal(s)
    default:
        return nil, fmt.Errorf("protobuf: cannot marshal %T", v)
    }
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    switch m := v.(type) {
    case proto.Message:
        return p.uo.Unmarshal(data, m)
    case Fielder:
        var s structpb.Struct
        if err := p.uo.Unmarshal(data, &s); err != nil { return err }
        return m.SetFields(s.AsMap())
    default:
        return fmt.Errorf("protobuf: cannot unmarshal into %T", v)
    }
}
