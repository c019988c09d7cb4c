package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	CodecJSON     = "json"
	CodecProtobuf = "protobuf"

	// BytesTag keys the object {"bytes": "<base64>"} that carries binary arguments.
	BytesTag = "bytes"
)

var ErrMalformedMessage = errors.New("malformed gateway message")

// Message is a named gateway message with positional, opaque arguments.
type Message struct {
	Name string
	Args []any
}

// Codec converts messages to frame payloads and back.
type Codec interface {
	Name() string
	Encode(msg Message) ([]byte, error)
	Decode(payload []byte) (Message, error)
}

func NewCodec(kind string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecProtobuf, "proto":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %q", kind)
	}
}

// JSONCodec encodes a message as the JSON array [name, args...].
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	if msg.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrMalformedMessage)
	}
	raw, err := marshalText(wireArray(msg))
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Name, err)
	}

	return raw, nil
}

func (JSONCodec) Decode(payload []byte) (Message, error) {
	var items []any
	if err := json.Unmarshal(payload, &items); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return messageFromArray(items)
}

// ProtoCodec encodes the same array as a google.protobuf.ListValue.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return CodecProtobuf }

func (ProtoCodec) Encode(msg Message) ([]byte, error) {
	if msg.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrMalformedMessage)
	}
	items, err := jsonShaped(wireArray(msg))
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Name, err)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Name, err)
	}
	raw, err := proto.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msg.Name, err)
	}

	return raw, nil
}

func (ProtoCodec) Decode(payload []byte) (Message, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(payload, &list); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return messageFromArray(list.AsSlice())
}

// wireArray builds [name, args...]. A byte slice that is valid UTF-8 travels as
// text; anything else is wrapped as {"bytes": base64} so bytes >= 0x80 survive.
func wireArray(msg Message) []any {
	items := make([]any, 0, len(msg.Args)+1)
	items = append(items, msg.Name)
	for _, arg := range msg.Args {
		if b, ok := arg.([]byte); ok {
			items = append(items, wireBytes(b))
			continue
		}
		items = append(items, arg)
	}

	return items
}

func wireBytes(b []byte) any {
	if utf8.Valid(b) {
		return string(b)
	}

	return map[string]any{BytesTag: base64.StdEncoding.EncodeToString(b)}
}

// taggedBytes reports the payload of a {"bytes": base64} object.
func taggedBytes(v any) ([]byte, bool) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 1 {
		return nil, false
	}
	encoded, ok := obj[BytesTag].(string)
	if !ok {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}

	return b, true
}

// marshalText encodes v as JSON without HTML escaping; G-code uses '<' and '>'.
func marshalText(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// jsonShaped round-trips v through JSON so structpb only sees the types it supports.
func jsonShaped(items []any) ([]any, error) {
	raw, err := marshalText(items)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func messageFromArray(items []any) (Message, error) {
	if len(items) == 0 {
		return Message{}, fmt.Errorf("%w: empty array", ErrMalformedMessage)
	}
	name, ok := items[0].(string)
	if !ok || name == "" {
		return Message{}, fmt.Errorf("%w: name is %T", ErrMalformedMessage, items[0])
	}

	var args []any
	if len(items) > 1 {
		args = items[1:]
		for i, arg := range args {
			if b, ok := taggedBytes(arg); ok {
				args[i] = b
			}
		}
	}

	return Message{Name: name, Args: args}, nil
}
