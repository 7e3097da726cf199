/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/schema"
)

const (
	maxBatchWrite    = 25
	maxTransactItems = 100
)

// Collection is the partition of one model inside the table.
type Collection struct {
	inst  *Instance
	model *schema.Model
}

func (c *Collection) Model() *schema.Model {
	return c.model
}

// matching loads the entities matching q in SK order. The filter is pushed
// down when DynamoDB can express it; results are always re-checked in memory.
func (c *Collection) matching(ctx context.Context, q *query.Query) ([]reflect.Value, []map[string]types.AttributeValue, error) {
	filter, _, err := compileFilter(q, c.model)
	if err != nil {
		return nil, nil, errors.NewValidationError("query", err.Error())
	}

	var (
		rows  []reflect.Value
		items []map[string]types.AttributeValue
	)
	err = c.inst.queryPartition(ctx, partitionQuery{pk: partitionKey(c.model), filter: filter},
		func(out *sdk.QueryOutput) error {
			for _, item := range out.Items {
				v, err := fromItem(c.model, item)
				if err != nil {
					return err
				}
				ok, err := query.Match(q, c.model, v.Interface())
				if err != nil {
					return err
				}
				if ok {
					rows = append(rows, v)
					items = append(items, item)
				}
			}
			return nil
		})
	if err != nil {
		return nil, nil, fmt.Errorf("find %s: %w", c.model.Name, err)
	}
	return rows, items, nil
}

func (c *Collection) Find(ctx context.Context, q *query.Query, dest any) error {
	out, err := datastore.SliceOf(c.model, dest)
	if err != nil {
		return err
	}
	rows, _, err := c.matching(ctx, q)
	if err != nil {
		return err
	}

	items := make([]any, len(rows))
	for i, r := range rows {
		items[i] = r.Interface()
	}
	if err := query.SortSlice(c.model, items, q.Sorts()); err != nil {
		return err
	}
	for _, it := range query.ApplyLimit(q, items) {
		out.Set(reflect.Append(out, reflect.ValueOf(it)))
	}
	return nil
}

func (c *Collection) Count(ctx context.Context, q *query.Query) (int64, error) {
	var n int64
	if len(q.Conditions()) == 0 {
		err := c.inst.queryPartition(ctx, partitionQuery{pk: partitionKey(c.model), count: true},
			func(out *sdk.QueryOutput) error {
				n += int64(out.Count)
				return nil
			})
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", c.model.Name, err)
		}
	} else {
		rows, _, err := c.matching(ctx, q)
		if err != nil {
			return 0, err
		}
		n = int64(len(rows))
	}
	if limit := int64(q.MaxResults()); limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

// Insert writes entities in transactions of up to 100 items, each conditioned
// on the key being absent. Batches larger than that are not atomic as a whole.
func (c *Collection) Insert(ctx context.Context, entities any) error {
	in, err := datastore.SliceOf(c.model, entities)
	if err != nil {
		return err
	}
	items, err := c.items(in)
	if err != nil {
		return err
	}
	if c.model.PK != nil {
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			sk := item[attrSK].(*types.AttributeValueMemberS).Value
			if seen[sk] {
				return errors.NewAlreadyExistsError(c.model.Name, sk)
			}
			seen[sk] = true
		}
	}

	for start := 0; start < len(items); start += maxTransactItems {
		end := min(start+maxTransactItems, len(items))
		chunk := items[start:end]
		tx := make([]types.TransactWriteItem, len(chunk))
		for i, item := range chunk {
			tx[i] = types.TransactWriteItem{Put: &types.Put{
				TableName:                aws.String(c.inst.cfg.Name),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": attrPK},
			}}
		}
		_, err := c.inst.client.TransactWriteItems(ctx, &sdk.TransactWriteItemsInput{TransactItems: tx})
		if err != nil {
			return c.mapInsertError(err, chunk)
		}
	}
	return nil
}

func (c *Collection) mapInsertError(err error, chunk []map[string]types.AttributeValue) error {
	var canceled *types.TransactionCanceledException
	if stderrors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" && i < len(chunk) {
				sk := chunk[i][attrSK].(*types.AttributeValueMemberS).Value
				return fmt.Errorf("insert %s: %w", c.model.Name, errors.NewAlreadyExistsError(c.model.Name, sk))
			}
		}
	}
	var cfe *types.ConditionalCheckFailedException
	if stderrors.As(err, &cfe) {
		return fmt.Errorf("insert %s: %w", c.model.Name, errors.NewAlreadyExistsError(c.model.Name, ""))
	}
	return fmt.Errorf("insert %s: %w", c.model.Name, err)
}

// Upsert replaces entities by key with batched puts. A key repeated in the
// input keeps its last value.
func (c *Collection) Upsert(ctx context.Context, entities any) error {
	if c.model.PK == nil {
		return fmt.Errorf("%s: %w", c.model.Name, errors.ErrPrimaryKeyRequired)
	}
	in, err := datastore.SliceOf(c.model, entities)
	if err != nil {
		return err
	}
	items, err := c.items(in)
	if err != nil {
		return err
	}

	last := make(map[string]int, len(items))
	for i, item := range items {
		last[item[attrSK].(*types.AttributeValueMemberS).Value] = i
	}
	reqs := make([]types.WriteRequest, 0, len(last))
	for i, item := range items {
		if last[item[attrSK].(*types.AttributeValueMemberS).Value] != i {
			continue
		}
		reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	if err := c.inst.batchWrite(ctx, reqs); err != nil {
		return fmt.Errorf("upsert %s: %w", c.model.Name, err)
	}
	return nil
}

func (c *Collection) Delete(ctx context.Context, q *query.Query) (int64, error) {
	_, items, err := c.matching(ctx, q)
	if err != nil {
		return 0, err
	}
	keys := make([]map[string]types.AttributeValue, len(items))
	for i, item := range items {
		keys[i] = map[string]types.AttributeValue{attrPK: item[attrPK], attrSK: item[attrSK]}
	}
	if err := c.inst.batchWrite(ctx, deleteRequests(keys)); err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.model.Name, err)
	}
	return int64(len(keys)), nil
}

func (c *Collection) Max(ctx context.Context, column string) (int64, error) {
	var highest int64
	err := c.inst.queryPartition(ctx, partitionQuery{pk: partitionKey(c.model), projection: []string{column}},
		func(out *sdk.QueryOutput) error {
			for _, item := range out.Items {
				if _, isNum := item[column].(*types.AttributeValueMemberN); !isNum {
					continue
				}
				var n int64
				if err := attributevalue.Unmarshal(item[column], &n); err != nil {
					return fmt.Errorf("column %s is not an integer: %w", column, err)
				}
				highest = max(highest, n)
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("max %s.%s: %w", c.model.Name, column, err)
	}
	return highest, nil
}

func (c *Collection) items(in reflect.Value) ([]map[string]types.AttributeValue, error) {
	items := make([]map[string]types.AttributeValue, in.Len())
	for i := range items {
		item, err := toItem(c.model, in.Index(i))
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}

func deleteRequests(keys []map[string]types.AttributeValue) []types.WriteRequest {
	reqs := make([]types.WriteRequest, len(keys))
	for i, k := range keys {
		reqs[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}}
	}
	return reqs
}

// batchWrite sends reqs in batches of 25, resubmitting unprocessed items with
// the engine's retry backoff.
func (i *Instance) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	for start := 0; start < len(reqs); start += maxBatchWrite {
		pending := reqs[start:min(start+maxBatchWrite, len(reqs))]
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > i.opts.MaxRetries {
				return fmt.Errorf("%d items unprocessed after %d retries", len(pending), i.opts.MaxRetries)
			}
			out, err := i.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{i.cfg.Name: pending},
			})
			if err != nil {
				if !isRetryableError(err) {
					return fmt.Errorf("BatchWriteItem failed: %w", err)
				}
			} else {
				pending = out.UnprocessedItems[i.cfg.Name]
			}
			if len(pending) == 0 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * i.opts.RetryBackoff):
			}
		}
	}
	return nil
}

var _ datastore.Collection = (*Collection)(nil)
