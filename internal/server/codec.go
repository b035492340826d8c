package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/contracts-parser/internal/common"
)

// decode reads a request struct into v through its JSON form.
func decode(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return common.InvalidArgumentErrorf("decode request: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return common.InvalidArgumentErrorf("decode request: %v", err)
	}
	return nil
}

// encode turns v into a response struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// Encode is the client-side counterpart of decode.
func Encode(v any) (*structpb.Struct, error) { return encode(v) }

// Decode is the client-side counterpart of encode.
func Decode(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
