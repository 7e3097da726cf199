/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory stand-in for the DynamoDB client. It honours
// key conditions, paging, Select COUNT and conditional puts; filter and
// projection expressions are ignored.
type fakeClient struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int

	queryCalls      int
	queryFailures   []error
	unprocessedOnce bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		tables:   make(map[string]map[string]map[string]types.AttributeValue),
		pageSize: 2,
	}
}

func itemKey(item map[string]types.AttributeValue) string {
	return item[attrPK].(*types.AttributeValueMemberS).Value + "|" + item[attrSK].(*types.AttributeValueMemberS).Value
}

func (f *fakeClient) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

func (f *fakeClient) GetItem(ctx context.Context, in *sdk.GetItemInput, _ ...func(*sdk.Options)) (*sdk.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sdk.GetItemOutput{Item: f.table(*in.TableName)[itemKey(in.Key)]}, nil
}

func (f *fakeClient) PutItem(ctx context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	if in.ConditionExpression != nil {
		if _, exists := t[itemKey(in.Item)]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	}
	t[itemKey(in.Item)] = in.Item
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.table(*in.TableName), itemKey(in.Key))
	return &sdk.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(ctx context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if len(f.queryFailures) > 0 {
		err := f.queryFailures[0]
		f.queryFailures = f.queryFailures[1:]
		return nil, err
	}

	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range f.table(*in.TableName) {
		if item[attrPK].(*types.AttributeValueMemberS).Value == pk {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i][attrSK].(*types.AttributeValueMemberS).Value < items[j][attrSK].(*types.AttributeValueMemberS).Value
	})

	start := 0
	if in.ExclusiveStartKey != nil {
		last := itemKey(in.ExclusiveStartKey)
		for i, item := range items {
			if itemKey(item) == last {
				start = i + 1
			}
		}
	}
	end := min(start+f.pageSize, len(items))
	page := items[start:end]

	out := &sdk.QueryOutput{Count: int32(len(page))}
	if in.Select != types.SelectCount {
		out.Items = page
	}
	if end < len(items) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{attrPK: page[len(page)-1][attrPK], attrSK: page[len(page)-1][attrSK]}
	}
	return out, nil
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, in *sdk.BatchWriteItemInput, _ ...func(*sdk.Options)) (*sdk.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &sdk.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for name, reqs := range in.RequestItems {
		if f.unprocessedOnce && len(reqs) > 1 {
			f.unprocessedOnce = false
			out.UnprocessedItems[name] = reqs[1:]
			reqs = reqs[:1]
		}
		t := f.table(name)
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				t[itemKey(r.PutRequest.Item)] = r.PutRequest.Item
			case r.DeleteRequest != nil:
				delete(t, itemKey(r.DeleteRequest.Key))
			}
		}
	}
	return out, nil
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, in *sdk.TransactWriteItemsInput, _ ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if ti.Put != nil && ti.Put.ConditionExpression != nil {
			if _, exists := f.table(*ti.Put.TableName)[itemKey(ti.Put.Item)]; exists {
				reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{Message: aws.String("canceled"), CancellationReasons: reasons}
	}
	for _, ti := range in.TransactItems {
		f.table(*ti.Put.TableName)[itemKey(ti.Put.Item)] = ti.Put.Item
	}
	return &sdk.TransactWriteItemsOutput{}, nil
}

func (f *fakeClient) DescribeTable(ctx context.Context, in *sdk.DescribeTableInput, _ ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[*in.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &sdk.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeClient) CreateTable(ctx context.Context, in *sdk.CreateTableInput, _ ...func(*sdk.Options)) (*sdk.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(*in.TableName)
	return &sdk.CreateTableOutput{}, nil
}

var _ API = (*fakeClient)(nil)
