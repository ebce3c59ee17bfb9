package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces canonical JSON for v. v may be a Value or plain Go data
// accepted by FromAny.
func Marshal(v any) ([]byte, error) {
	val, err := FromAny(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshal is Marshal for values built in code. It panics on error.
func MustMarshal(v Value) []byte {
	out, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return out
}

func encode(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Null:
		buf.WriteString("null")
	case String:
		return encodeString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range normalizedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k.normalized); err != nil {
				return fmt.Errorf("key %q: %w", k.raw, err)
			}
			buf.WriteByte(':')
			if err := encode(buf, val[k.raw]); err != nil {
				return fmt.Errorf("value for key %q: %w", k.raw, err)
			}
		}
		buf.WriteByte('}')
	case nil:
		return fmt.Errorf("nil value (use Null)")
	default:
		return fmt.Errorf("unsupported canonical value: %T", v)
	}
	return nil
}

type objectKey struct {
	raw, normalized string
}

// normalizedKeys orders keys by their NFC form, which is what gets written.
func normalizedKeys(o Object) []objectKey {
	raw := o.SortedKeys()
	keys := make([]objectKey, len(raw))
	for i, k := range raw {
		keys[i] = objectKey{raw: k, normalized: norm.NFC.String(k)}
	}
	// Re-sort only when normalization changed something.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && compareUTF16(keys[j-1].normalized, keys[j].normalized) > 0; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// encodeString writes s NFC normalized. Only quote, backslash and control
// characters are escaped; U+2028 and U+2029 stay literal.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and stays.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' {
			out = append(out, data[i])
			continue
		}
		if i+5 < len(data) && string(data[i+1:i+5]) == "u202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// Any other escape: copy both bytes so an escaped backslash is
		// never mistaken for the start of a sequence.
		out = append(out, data[i])
		if i+1 < len(data) {
			out = append(out, data[i+1])
			i++
		}
	}
	return out
}
