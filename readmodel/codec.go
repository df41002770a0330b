package readmodel

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns cache entries into bytes and back.
type Codec interface {
	Marshal(Entry) ([]byte, error)
	Unmarshal([]byte) (Entry, error)
	Name() string
}

// JSONCodec writes the documented wire format:
// {"class": ..., "data": {...}, "version": ..., "cached_at": ...}.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func (JSONCodec) Unmarshal(b []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// MsgpackCodec is a compact binary alternative for shared backends.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Marshal(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(b []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// CodecByName resolves "json" or "msgpack"; anything else yields JSON.
func CodecByName(name string) Codec {
	if name == "msgpack" {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}
