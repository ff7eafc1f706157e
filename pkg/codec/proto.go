package codec

import (
    "encoding/json"
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec with deterministic marshaling.
// Values that are not proto messages are carried as a structpb.Value built
// from their JSON form.
func Proto() Codec {
    return protoCodec{mo: proto.MarshalOptions{Deterministic: true}}
}

func (p protoCodec) Name() string        { return "proto" }
func (p protoCodec) ContentType() string { return "application/x-protobuf" }
func (p protoCodec) Ext() string         { return ".pb" }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    msg, ok := v.(proto.Message)
    if !ok {
        sv, err := ToValue(v)
        if err != nil { return nil, err }
        msg = sv
    }
    return p.mo.Marshal(msg)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    if msg, ok := v.(proto.Message); ok { return p.uo.Unmarshal(data, msg) }
    var sv structpb.Value
    if err := p.uo.Unmarshal(data, &sv); err != nil { return err }
    b, err := json.Marshal(sv.AsInterface())
    if err != nil { return err }
    return json.Unmarshal(b, v)
}

// ToValue converts a plain Go value to a structpb.Value via its JSON form.
func ToValue(v any) (*structpb.Value, error) {
    b, err := json.Marshal(v)
    if err != nil { return nil, fmt.Errorf("protobuf: encode %T: %w", v, err) }
    var generic any
    if err := json.Unmarshal(b, &generic); err != nil { return nil, err }
    sv, err := structpb.NewValue(generic)
    if err != nil { return nil, fmt.Errorf("protobuf: convert %T: %w", v, err) }
    return sv, nil
}
