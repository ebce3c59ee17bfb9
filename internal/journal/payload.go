package journal

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/incr/internal/canonical"
)

// encodePayload stores an object as msgpack with sorted map keys, so equal
// objects encode to equal bytes.
func encodePayload(obj canonical.Object) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(canonical.ToAny(obj))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte) (canonical.Object, error) {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var raw map[string]any
	err := dec.Decode(&raw)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	v, err := canonical.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	obj, ok := v.(canonical.Object)
	if !ok {
		return nil, fmt.Errorf("decode payload: expected object, got %T", v)
	}
	return obj, nil
}
