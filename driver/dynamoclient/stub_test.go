package dynamoclient

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynStub struct {
	mu              sync.Mutex
	items           map[string]map[string]types.AttributeValue
	exists          bool
	putErr          error
	scanErr         error
	getErr          error
	batchGetErr     error
	batchGetSizes   []int
	batchWriteSizes []int
	// unprocessOnce returns the first batch get request as unprocessed once.
	unprocessOnce bool
	describeErrs  []error
	createErrs    []error
	describeHits  int
	createHits    int
	// afterGet runs once a GetItem has released the lock.
	afterGet func()
}

func newDynStub() *dynStub {
	return &dynStub{items: map[string]map[string]types.AttributeValue{}, exists: true}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["k"].(*types.AttributeValueMemberS).Value
}

func (d *dynStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	out, err := d.getItem(in)
	if d.afterGet != nil {
		d.afterGet()
	}
	return out, err
}

func (d *dynStub) getItem(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.getErr != nil {
		return nil, d.getErr
	}
	item, ok := d.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (d *dynStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.putErr != nil {
		return nil, d.putErr
	}
	d.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (d *dynStub) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := keyOf(in.Key)
	// Only the "#ea < :now" condition used for lazy expiry is understood.
	if in.ConditionExpression != nil {
		item, ok := d.items[key]
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
		ea, _ := strconv.ParseInt(item["ea"].(*types.AttributeValueMemberN).Value, 10, 64)
		now, _ := strconv.ParseInt(in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value, 10, 64)
		if ea >= now {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(d.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *dynStub) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batchGetErr != nil {
		return nil, d.batchGetErr
	}
	if d.unprocessOnce {
		d.unprocessOnce = false
		return &dynamodb.BatchGetItemOutput{UnprocessedKeys: in.RequestItems}, nil
	}
	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for table, ka := range in.RequestItems {
		d.batchGetSizes = append(d.batchGetSizes, len(ka.Keys))
		for _, key := range ka.Keys {
			if item, ok := d.items[keyOf(key)]; ok {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
	}
	return out, nil
}

func (d *dynStub) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, writes := range in.RequestItems {
		d.batchWriteSizes = append(d.batchWriteSizes, len(writes))
		for _, wr := range writes {
			if dr := wr.DeleteRequest; dr != nil {
				delete(d.items, keyOf(dr.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (d *dynStub) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scanErr != nil {
		return nil, d.scanErr
	}
	prefix := ""
	if p, ok := in.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS); ok {
		prefix = p.Value
	}
	var items []map[string]types.AttributeValue
	for k := range d.items {
		if strings.HasPrefix(k, prefix) {
			items = append(items, map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: k}})
		}
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (d *dynStub) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.createHits++
	if len(d.createErrs) > 0 {
		err := d.createErrs[0]
		d.createErrs = d.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	d.exists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *dynStub) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.describeHits++
	if len(d.describeErrs) > 0 {
		err := d.describeErrs[0]
		d.describeErrs = d.describeErrs[1:]
		if err != nil {
			return nil, err
		}
		return &dynamodb.DescribeTableOutput{}, nil
	}
	if d.exists {
		return &dynamodb.DescribeTableOutput{}, nil
	}
	return nil, &types.ResourceNotFoundException{}
}
