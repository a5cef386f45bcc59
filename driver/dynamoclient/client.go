// Package dynamoclient implements storecore.Client on a DynamoDB table.
//
// Items have a string hash key "k", a binary value "v" and an expiry "ea" in
// unix milliseconds. Expired items read as misses and are removed lazily with
// a conditional delete, so an item rewritten in the meantime survives.
package dynamoclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goforj/mcstore/codec"
	"github.com/goforj/mcstore/storecore"
)

const (
	defaultRegion        = "us-east-1"
	defaultTable         = "cache_entries"
	defaultEnsureTimeout = 10 * time.Second

	maxBatchGet   = 100
	maxBatchWrite = 25
	// Unprocessed keys are retried this many times before giving up.
	maxBatchRetries = 5

	ensureTableMaxAttempts = 20
	ensureTableRetryDelay  = 150 * time.Millisecond
)

// API captures the subset of DynamoDB client methods used by the driver.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config configures the DynamoDB driver. Client is read from the "client" option.
type Config struct {
	storecore.BaseConfig `mapstructure:",squash"`
	Region               string        `mapstructure:"region"`
	Endpoint             string        `mapstructure:"endpoint"`
	Table                string        `mapstructure:"table"`
	AccessKeyID          string        `mapstructure:"access_key_id"`
	SecretAccessKey      string        `mapstructure:"secret_access_key"`
	EnsureTimeout        time.Duration `mapstructure:"ensure_timeout"`
	Client               API           `mapstructure:"-"`
}

type store struct {
	cfg      Config
	client   API
	pipeline *codec.Pipeline
}

// New is the DynamoDB driver's storecore.Factory. It makes sure the table
// exists, creating it on demand, within EnsureTimeout.
//
// Defaults:
// - Region: "us-east-1" when empty
// - Table: "cache_entries" when empty
// - EnsureTimeout: 10s
// - Client: built from Region, Endpoint and optional static keys when absent
//
// Example: DynamoDB Local
//
//	store, err := mcstore.New(mcstore.Config{
//		Driver: dynamoclient.New,
//		Options: storecore.Options{
//			"endpoint": "http://localhost:8000",
//			"table":    "cache_entries",
//		},
//	})
func New(opts storecore.Options) (storecore.Client, error) {
	var cfg Config
	if err := storecore.DecodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	if client, ok := opts["client"].(API); ok {
		cfg.Client = client
	}
	timeout := cfg.EnsureTimeout
	if timeout <= 0 {
		timeout = defaultEnsureTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return NewClient(ctx, cfg)
}

// NewClient builds the driver client from a decoded Config.
func NewClient(ctx context.Context, cfg Config) (storecore.Client, error) {
	cfg.BaseConfig = cfg.BaseConfig.WithDefaults()
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	pipeline, err := codec.NewPipeline(cfg.BaseConfig)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: %w", err)
	}
	if cfg.Client == nil {
		client, err := newAWSClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.Client = client
	}
	if err := ensureTable(ctx, cfg.Client, cfg.Table); err != nil {
		return nil, err
	}
	return &store{cfg: cfg, client: cfg.Client, pipeline: pipeline}, nil
}

func newAWSClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	switch {
	case cfg.AccessKeyID != "":
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	case cfg.Endpoint != "":
		// Local emulators accept any credentials.
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint, HostnameImmutable: true}, nil
		})
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func (s *store) Driver() storecore.Driver { return storecore.DriverDynamo }

func (s *store) Ready(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.cfg.Table)})
	return err
}

func (s *store) Get(ctx context.Context, key string) (storecore.Value, bool, error) {
	full := s.cfg.Key(key)
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.cfg.Table),
		Key:            keyAttr(full),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, err
	}
	if out.Item == nil {
		return nil, false, nil
	}
	if now := time.Now(); expired(out.Item, now) {
		_ = s.deleteExpired(ctx, full, now)
		return nil, false, nil
	}
	return s.decodeItem(out.Item)
}

func (s *store) Set(ctx context.Context, key string, value storecore.Value, ttl time.Duration) error {
	body, err := s.pipeline.Encode(value)
	if err != nil {
		return err
	}
	exp := time.Now().Add(s.cfg.TTL(ttl)).UnixMilli()
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cfg.Table),
		Item: map[string]types.AttributeValue{
			"k":  &types.AttributeValueMemberS{Value: s.cfg.Key(key)},
			"v":  &types.AttributeValueMemberB{Value: body},
			"ea": &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)},
		},
	})
	return err
}

func (s *store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cfg.Table),
		Key:       keyAttr(s.cfg.Key(key)),
	})
	return err
}

// GetMulti reads keys with BatchGetItem in chunks of 100, retrying
// unprocessed keys.
func (s *store) GetMulti(ctx context.Context, keys []string) (map[string]storecore.Value, error) {
	original := make(map[string]string, len(keys))
	unique := make([]string, 0, len(keys))
	for _, key := range keys {
		full := s.cfg.Key(key)
		if _, seen := original[full]; seen {
			continue
		}
		original[full] = key
		unique = append(unique, full)
	}

	out := make(map[string]storecore.Value, len(unique))
	now := time.Now()
	for start := 0; start < len(unique); start += maxBatchGet {
		end := min(start+maxBatchGet, len(unique))
		reqKeys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, full := range unique[start:end] {
			reqKeys = append(reqKeys, keyAttr(full))
		}
		request := map[string]types.KeysAndAttributes{
			s.cfg.Table: {Keys: reqKeys, ConsistentRead: aws.Bool(true)},
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt > maxBatchRetries {
				return nil, errors.New("dynamodb: batch get left unprocessed keys")
			}
			resp, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, err
			}
			for _, item := range resp.Responses[s.cfg.Table] {
				k, ok := item["k"].(*types.AttributeValueMemberS)
				if !ok || expired(item, now) {
					continue
				}
				value, hit, err := s.decodeItem(item)
				if err != nil {
					return nil, err
				}
				if hit {
					out[original[k.Value]] = value
				}
			}
			request = resp.UnprocessedKeys
		}
	}
	return out, nil
}

// Flush deletes every item under the prefix. Other prefixes sharing the
// table are left alone.
func (s *store) Flush(ctx context.Context) error {
	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.cfg.Table),
			ProjectionExpression:      aws.String("k"),
			FilterExpression:          aws.String("begins_with(k, :p)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":p": &types.AttributeValueMemberS{Value: s.cfg.Key("")}},
			ExclusiveStartKey:         lastEvaluatedKey,
		})
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(out.Items))
		for _, item := range out.Items {
			if k, ok := item["k"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, k.Value)
			}
		}
		if err := s.deleteFull(ctx, keys); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		lastEvaluatedKey = out.LastEvaluatedKey
	}
}

func (s *store) deleteFull(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(keys))
		writes := make([]types.WriteRequest, 0, end-start)
		for _, full := range keys[start:end] {
			writes = append(writes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: keyAttr(full)}})
		}
		request := map[string][]types.WriteRequest{s.cfg.Table: writes}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt > maxBatchRetries {
				return errors.New("dynamodb: batch write left unprocessed items")
			}
			resp, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: request})
			if err != nil {
				return err
			}
			request = resp.UnprocessedItems
		}
	}
	return nil
}

func (s *store) decodeItem(item map[string]types.AttributeValue) (storecore.Value, bool, error) {
	v, ok := item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, errors.New("dynamodb: item missing binary value")
	}
	value, err := s.pipeline.Decode(v.Value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func keyAttr(full string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: full}}
}

// deleteExpired removes full only while its expiry is still before now.
func (s *store) deleteExpired(ctx context.Context, full string, now time.Time) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.cfg.Table),
		Key:                      keyAttr(full),
		ConditionExpression:      aws.String("#ea < :now"),
		ExpressionAttributeNames: map[string]string{"#ea": "ea"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
	})
	return err
}

func expired(item map[string]types.AttributeValue, now time.Time) bool {
	av, ok := item["ea"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	exp, err := strconv.ParseInt(av.Value, 10, 64)
	if err != nil {
		return false
	}
	return now.UnixMilli() > exp
}

func ensureTable(ctx context.Context, client API, table string) error {
	var lastErr error
	for attempt := 1; attempt <= ensureTableMaxAttempts; attempt++ {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := client.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("k"), KeyType: types.KeyTypeHash},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String("k"), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == ensureTableMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ensureTableRetryDelay):
		}
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

// isStartupRetryable matches transport errors seen while a local emulator boots.
func isStartupRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}
