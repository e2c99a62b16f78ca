package codec_test

import (
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/innotter/stats/codec"
)

func TestEncode(t *testing.T) {
	record, err := codec.Encode(map[string]any{
		"id":         1,
		"is_blocked": false,
		"username":   "admin",
		"image_path": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, codec.Record{
		"id":         codec.Number("1"),
		"is_blocked": codec.Bool(false),
		"username":   codec.String("admin"),
		"image_path": codec.Null(),
	}, record)
}

func TestEncodeWireFormat(t *testing.T) {
	record, err := codec.Encode(map[string]any{
		"id":         json.Number("1"),
		"is_blocked": false,
		"username":   "admin",
	})
	require.NoError(t, err)

	body, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":{"N":"1"},"is_blocked":{"BOOL":false},"username":{"S":"admin"}}`, string(body))

	patch, err := codec.EncodePatch(map[string]any{"username": "root"})
	require.NoError(t, err)

	body, err = json.Marshal(patch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":{"Value":{"S":"root"}}}`, string(body))
}

func TestClassifyBoolBeforeNumber(t *testing.T) {
	value, err := codec.Classify(true)
	require.NoError(t, err)
	assert.Equal(t, codec.TagBool, value.Tag)

	value, err = codec.Classify(int64(1))
	require.NoError(t, err)
	assert.Equal(t, codec.TagNumber, value.Tag)
}

func TestEncodeRejectsUnsupported(t *testing.T) {
	tests := map[string]any{
		"float":    1.5,
		"fraction": json.Number("1.5"),
		"list":     []any{1, 2},
		"map":      map[string]any{"a": 1},
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Encode(map[string]any{"id": 1, "bad": raw})
			require.ErrorIs(t, err, codec.ErrInvalidObjectType)

			var typed *codec.InvalidObjectTypeError
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, "bad", typed.Field)
		})
	}
}

func TestDecode(t *testing.T) {
	got := codec.Decode(codec.Record{
		"id":        codec.Number("7"),
		"name":      codec.String("page"),
		"private":   codec.Bool(true),
		"avatar":    codec.Binary([]byte("png")),
		"unblocked": codec.Null(),
	})

	assert.Equal(t, map[string]string{
		"id":        "7",
		"name":      "page",
		"private":   "true",
		"avatar":    "png",
		"unblocked": "",
	}, got)
}

func TestPatchApply(t *testing.T) {
	record := codec.Record{"id": codec.Int(1), "name": codec.String("a"), "followers": codec.Int(3)}
	patch, err := codec.EncodePatch(map[string]any{"name": "b"})
	require.NoError(t, err)

	got := patch.Apply(record)
	assert.Equal(t, codec.Record{"id": codec.Int(1), "name": codec.String("b"), "followers": codec.Int(3)}, got)
}

func TestValueRoundTrip(t *testing.T) {
	in := codec.Record{
		"s": codec.String("x"),
		"n": codec.Int(-42),
		"b": codec.Bool(true),
		"y": codec.Binary([]byte{0, 1, 2}),
		"z": codec.Null(),
	}

	t.Run("json", func(t *testing.T) {
		body, err := json.Marshal(in)
		require.NoError(t, err)

		var out codec.Record
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, in, out)
	})

	t.Run("msgpack", func(t *testing.T) {
		body, err := msgpack.Marshal(in)
		require.NoError(t, err)

		var out codec.Record
		require.NoError(t, msgpack.Unmarshal(body, &out))
		assert.Equal(t, in, out)
	})
}

func TestValueUnmarshalRejectsUnknownTag(t *testing.T) {
	var v codec.Value
	require.ErrorIs(t, json.Unmarshal([]byte(`{"L":[]}`), &v), codec.ErrInvalidValue)
	require.ErrorIs(t, json.Unmarshal([]byte(`{"S":"a","N":"1"}`), &v), codec.ErrInvalidValue)
}
