package kv

import (
	"encoding/binary"
	"fmt"
	"maps"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/innotter/stats/codec"
)

// TablePrefix is the key prefix shared by every record of table in the
// embedded drivers.
func TablePrefix(table string) []byte {
	return append([]byte(table), '/')
}

// RecordKey is TablePrefix followed by the big-endian id, so a prefix
// iteration visits non-negative ids in ascending order.
func RecordKey(table string, id int64) []byte {
	return binary.BigEndian.AppendUint64(TablePrefix(table), uint64(id)) //nolint:gosec // bit pattern only
}

// MarshalRecord encodes a record, forcing its id field.
func MarshalRecord(id int64, record codec.Record) ([]byte, error) {
	record = maps.Clone(record)
	if record == nil {
		record = codec.Record{}
	}

	record["id"] = codec.Int(id)

	body, err := msgpack.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record %d: %w", id, err)
	}

	return body, nil
}

func UnmarshalRecord(body []byte) (codec.Record, error) {
	var record codec.Record
	if err := msgpack.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	return record, nil
}
