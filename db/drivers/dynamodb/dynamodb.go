// Package dynamodb keeps projections in DynamoDB tables whose partition key
// is the numeric attribute "id".
package dynamodb

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv"
)

const partitionKey = "id"

var _ kv.Driver = (*Store)(nil)

func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// NewWithClient wraps an existing client. prefix is prepended to every table name.
func NewWithClient(client API, prefix string) *Store {
	return &Store{client: client, config: Config{TablePrefix: prefix}}
}

// Init - initialize
func (s *Store) Init(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	// Set configuration
	s.setConfig()

	var opts []func(*awsconfig.LoadOptions) error
	if s.config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.config.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if s.config.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(s.config.Endpoint)
		})
	}

	s.client = dynamodb.NewFromConfig(awsCfg, clientOpts...)

	return nil
}

func (s *Store) Get(ctx context.Context, table string, id int64) (codec.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.tableName(table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	if len(out.Item) == 0 {
		return nil, kv.ErrNotFound
	}

	return fromItem(out.Item)
}

func (s *Store) Put(ctx context.Context, table string, id int64, record codec.Record) error {
	record = maps.Clone(record)
	if record == nil {
		record = codec.Record{}
	}

	record[partitionKey] = codec.Int(id)

	item, err := toItem(record)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: s.tableName(table),
		Item:      item,
	})

	return err
}

// Update applies the patch with PUT attribute actions. The partition key
// cannot be updated, so it is skipped when present in the patch.
func (s *Store) Update(ctx context.Context, table string, id int64, patch codec.Patch) error {
	updates := make(map[string]types.AttributeValueUpdate, len(patch))

	for field, wrapped := range patch {
		if field == partitionKey {
			continue
		}

		av, err := toAttribute(wrapped.Value)
		if err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}

		updates[field] = types.AttributeValueUpdate{
			Action: types.AttributeActionPut,
			Value:  av,
		}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        s.tableName(table),
		Key:              key(id),
		AttributeUpdates: updates,
	})

	return err
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: s.tableName(table),
		Key:       key(id),
	})

	return err
}

func (s *Store) Scan(ctx context.Context, table string) ([]codec.Record, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: s.tableName(table),
	})

	var records []codec.Record

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			record, err := fromItem(item)
			if err != nil {
				return nil, err
			}

			records = append(records, record)
		}
	}

	return records, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})

	return err
}

func (*Store) Close() error {
	return nil
}

func (s *Store) tableName(table string) *string {
	return aws.String(s.config.TablePrefix + table)
}

func key(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_DYNAMODB_REGION", "us-east-1") // AWS region
	s.cfg.SetDefault("STORE_DYNAMODB_ENDPOINT", "")        // Custom endpoint, e.g. LocalStack
	s.cfg.SetDefault("STORE_TABLE_PREFIX", "")             // Prepended to every table name

	s.config = Config{
		Region:      s.cfg.GetString("STORE_DYNAMODB_REGION"),
		Endpoint:    s.cfg.GetString("STORE_DYNAMODB_ENDPOINT"),
		TablePrefix: s.cfg.GetString("STORE_TABLE_PREFIX"),
	}
}
