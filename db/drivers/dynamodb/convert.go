package dynamodb

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/innotter/stats/codec"
)

// ErrUnsupportedAttribute is returned for attribute kinds the projection never writes.
var ErrUnsupportedAttribute = errors.New("unsupported attribute type")

func toAttribute(v codec.Value) (types.AttributeValue, error) {
	switch v.Tag {
	case codec.TagString:
		return &types.AttributeValueMemberS{Value: v.Text}, nil
	case codec.TagNumber:
		return &types.AttributeValueMemberN{Value: v.Text}, nil
	case codec.TagBool:
		return &types.AttributeValueMemberBOOL{Value: v.Bool}, nil
	case codec.TagBinary:
		return &types.AttributeValueMemberB{Value: v.Binary}, nil
	case codec.TagNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	default:
		return nil, fmt.Errorf("%w: tag %q", codec.ErrInvalidValue, v.Tag)
	}
}

func fromAttribute(av types.AttributeValue) (codec.Value, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return codec.String(v.Value), nil
	case *types.AttributeValueMemberN:
		return codec.Number(v.Value), nil
	case *types.AttributeValueMemberBOOL:
		return codec.Bool(v.Value), nil
	case *types.AttributeValueMemberB:
		return codec.Binary(v.Value), nil
	case *types.AttributeValueMemberNULL:
		return codec.Null(), nil
	default:
		return codec.Value{}, fmt.Errorf("%w: %T", ErrUnsupportedAttribute, av)
	}
}

func toItem(record codec.Record) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(record))

	for field, value := range record {
		av, err := toAttribute(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}

		item[field] = av
	}

	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (codec.Record, error) {
	record := make(codec.Record, len(item))

	for field, av := range item {
		value, err := fromAttribute(av)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}

		record[field] = value
	}

	return record, nil
}
