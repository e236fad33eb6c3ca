package ws

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Frame is one analytics update rendered for both wire protocols.
type Frame struct {
	Protobuf []byte
	JSON     []byte
}

// Encoder renders analytics payloads as JSON and as Zstd-compressed protobuf.
type Encoder struct {
	zstdEncoder *zstd.Encoder
}

// NewEncoder creates a new Encoder with Zstd compression.
func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc}, nil
}

// Encode renders payload for group. Protobuf clients receive an Any whose
// type URL names the topic and whose value is a Zstd-compressed Struct
// carrying the group and the payload fields.
func (e *Encoder) Encode(group string, topic Topic, payload any) (*Frame, error) {
	// 1. JSON rendering of the response shape
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	// 2. Same fields as a protobuf Struct
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	fields["group"] = group
	body, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("convert payload: %w", err)
	}
	pbData, err := proto.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf: %w", err)
	}

	// 3. Compress with Zstd and wrap with the topic type URL
	wrapper := &anypb.Any{
		TypeUrl: topic.typeURL(),
		Value:   e.zstdEncoder.EncodeAll(pbData, nil),
	}
	wire, err := proto.Marshal(wrapper)
	if err != nil {
		return nil, fmt.Errorf("marshal any: %w", err)
	}

	return &Frame{
		Protobuf: wire,
		JSON:     buildDataMessageJSON(group, raw),
	}, nil
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
}

// DecodeFrame reverses the protobuf encoding of a data frame.
func DecodeFrame(wire []byte) (Topic, *structpb.Struct, error) {
	var wrapper anypb.Any
	if err := proto.Unmarshal(wire, &wrapper); err != nil {
		return "", nil, fmt.Errorf("unmarshal any: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return "", nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	pbData, err := dec.DecodeAll(wrapper.Value, nil)
	if err != nil {
		return "", nil, fmt.Errorf("decompress: %w", err)
	}
	var body structpb.Struct
	if err := proto.Unmarshal(pbData, &body); err != nil {
		return "", nil, fmt.Errorf("unmarshal struct: %w", err)
	}
	topic := Topic(strings.TrimPrefix(wrapper.TypeUrl, "proto."))
	return topic, &body, nil
}
