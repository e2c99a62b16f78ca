// Package codec converts payload fields to the typed representation kept in
// the projection store and back.
package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/segmentio/encoding/json"
	"github.com/vmihailenco/msgpack/v5"
)

// Tag names the kind of a stored value. The names follow the store's wire format.
type Tag string

const (
	TagString Tag = "S"
	TagNumber Tag = "N"
	TagBool   Tag = "BOOL"
	TagBinary Tag = "B"
	TagNull   Tag = "NULL"
)

// Value is a tagged scalar. Numbers are kept as decimal text.
type Value struct {
	Tag    Tag
	Text   string
	Bool   bool
	Binary []byte
}

func String(s string) Value { return Value{Tag: TagString, Text: s} }

func Number(n string) Value { return Value{Tag: TagNumber, Text: n} }

func Int(n int64) Value { return Number(strconv.FormatInt(n, 10)) }

func Bool(b bool) Value { return Value{Tag: TagBool, Bool: b} }

func Binary(b []byte) Value { return Value{Tag: TagBinary, Binary: b} }

// Null carries the true sentinel, as the store requires.
func Null() Value { return Value{Tag: TagNull, Bool: true} }

// String renders the value as plain text.
func (v Value) String() string {
	switch v.Tag {
	case TagString, TagNumber:
		return v.Text
	case TagBool:
		return strconv.FormatBool(v.Bool)
	case TagBinary:
		return string(v.Binary)
	default:
		return ""
	}
}

// MarshalJSON renders {"<TAG>": value}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Tag {
	case TagString, TagNumber:
		return json.Marshal(map[Tag]string{v.Tag: v.Text})
	case TagBool, TagNull:
		return json.Marshal(map[Tag]bool{v.Tag: v.Bool})
	case TagBinary:
		return json.Marshal(map[Tag]string{v.Tag: base64.StdEncoding.EncodeToString(v.Binary)})
	default:
		return nil, fmt.Errorf("%w: tag %q", ErrInvalidValue, v.Tag)
	}
}

// UnmarshalJSON parses {"<TAG>": value}.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[Tag]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if len(raw) != 1 {
		return fmt.Errorf("%w: expected a single tag, got %d", ErrInvalidValue, len(raw))
	}

	for tag, body := range raw {
		parsed := Value{Tag: tag}

		var err error

		switch tag {
		case TagString, TagNumber:
			err = json.Unmarshal(body, &parsed.Text)
		case TagBool, TagNull:
			err = json.Unmarshal(body, &parsed.Bool)
		case TagBinary:
			var encoded string
			if err = json.Unmarshal(body, &encoded); err == nil {
				parsed.Binary, err = base64.StdEncoding.DecodeString(encoded)
			}
		default:
			err = fmt.Errorf("%w: tag %q", ErrInvalidValue, tag)
		}

		if err != nil {
			return err
		}

		*v = parsed
	}

	return nil
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack writes the value as a [tag, payload] pair.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}

	if err := enc.EncodeString(string(v.Tag)); err != nil {
		return err
	}

	switch v.Tag {
	case TagString, TagNumber:
		return enc.EncodeString(v.Text)
	case TagBool, TagNull:
		return enc.EncodeBool(v.Bool)
	case TagBinary:
		return enc.EncodeBytes(v.Binary)
	default:
		return fmt.Errorf("%w: tag %q", ErrInvalidValue, v.Tag)
	}
}

// DecodeMsgpack reads a [tag, payload] pair.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}

	if n != 2 {
		return fmt.Errorf("%w: expected pair, got %d items", ErrInvalidValue, n)
	}

	tag, err := dec.DecodeString()
	if err != nil {
		return err
	}

	parsed := Value{Tag: Tag(tag)}

	switch parsed.Tag {
	case TagString, TagNumber:
		parsed.Text, err = dec.DecodeString()
	case TagBool, TagNull:
		parsed.Bool, err = dec.DecodeBool()
	case TagBinary:
		parsed.Binary, err = dec.DecodeBytes()
	default:
		err = fmt.Errorf("%w: tag %q", ErrInvalidValue, tag)
	}

	if err != nil {
		return err
	}

	*v = parsed

	return nil
}
