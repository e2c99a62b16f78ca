package codec

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/segmentio/encoding/json"
)

// Record is a full set of attributes, written with a put.
type Record map[string]Value

// PatchValue wraps a value one level deeper, as partial updates require.
type PatchValue struct {
	Value Value `json:"Value" msgpack:"Value"`
}

// Patch is a sparse set of attributes, applied over an existing record.
type Patch map[string]PatchValue

// Classify picks the tag for a single payload value. bool is checked before
// the integer kinds.
func Classify(value any) (Value, error) {
	switch v := value.(type) {
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint8:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint16:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint32:
		return Number(strconv.FormatUint(uint64(v), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(v, 10)), nil
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return Value{}, &InvalidObjectTypeError{Type: "non-integer number " + v.String()}
		}

		return Int(n), nil
	case string:
		return String(v), nil
	case []byte:
		return Binary(v), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, &InvalidObjectTypeError{Type: fmt.Sprintf("%T", value)}
	}
}

// Encode converts attrs into a full record. The first unsupported field
// aborts the whole conversion.
func Encode(attrs map[string]any) (Record, error) {
	record := make(Record, len(attrs))

	for field, raw := range attrs {
		value, err := classifyField(field, raw)
		if err != nil {
			return nil, err
		}

		record[field] = value
	}

	return record, nil
}

// EncodePatch converts attrs into a sparse patch.
func EncodePatch(attrs map[string]any) (Patch, error) {
	record, err := Encode(attrs)
	if err != nil {
		return nil, err
	}

	return record.Patch(), nil
}

// Patch wraps every field of the record.
func (r Record) Patch() Patch {
	patch := make(Patch, len(r))
	for field, value := range r {
		patch[field] = PatchValue{Value: value}
	}

	return patch
}

// Apply merges the patch over the record in place and returns it.
func (p Patch) Apply(record Record) Record {
	if record == nil {
		record = make(Record, len(p))
	}

	for field, wrapped := range p {
		record[field] = wrapped.Value
	}

	return record
}

// Decode renders every attribute as plain text.
func Decode(record Record) map[string]string {
	out := make(map[string]string, len(record))
	for field, value := range record {
		out[field] = value.String()
	}

	return out
}

func classifyField(field string, raw any) (Value, error) {
	value, err := Classify(raw)
	if err != nil {
		var typed *InvalidObjectTypeError
		if errors.As(err, &typed) {
			typed.Field = field
		}

		return Value{}, err
	}

	return value, nil
}
