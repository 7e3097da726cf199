/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/embedstore/logging"
	"go.uber.org/zap"
)

// partitionQuery describes a paginated query over one partition.
type partitionQuery struct {
	pk         string
	filter     *filterExpr
	projection []string
	count      bool
}

// queryPartition runs q page by page and hands every page to fn.
func (i *Instance) queryPartition(ctx context.Context, q partitionQuery, fn func(out *sdk.QueryOutput) error) error {
	names := map[string]string{"#pk": attrPK}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: q.pk},
	}
	input := &sdk.QueryInput{
		TableName:              aws.String(i.cfg.Name),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ConsistentRead:         aws.Bool(true),
		Limit:                  aws.Int32(i.opts.PageSize),
	}
	if q.filter != nil {
		input.FilterExpression = aws.String(q.filter.expr)
		for k, v := range q.filter.names {
			names[k] = v
		}
		for k, v := range q.filter.values {
			values[k] = v
		}
	}
	if len(q.projection) > 0 {
		proj := ""
		for n, col := range q.projection {
			ph := fmt.Sprintf("#p%d", n)
			names[ph] = col
			if proj != "" {
				proj += ", "
			}
			proj += ph
		}
		input.ProjectionExpression = aws.String(proj)
	}
	if q.count {
		input.Select = types.SelectCount
	}
	input.ExpressionAttributeNames = names
	input.ExpressionAttributeValues = values

	var pages int
	for {
		out, err := i.queryWithRetry(ctx, input)
		if err != nil {
			return err
		}
		pages++
		if err := fn(out); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	logging.L().Debug("ddb partition query done",
		zap.String("table", i.cfg.Name),
		zap.String("partition", q.pk),
		zap.Int("pages", pages))
	return nil
}

// queryWithRetry executes a query, retrying transient errors with a linear backoff
func (i *Instance) queryWithRetry(ctx context.Context, input *sdk.QueryInput) (*sdk.QueryOutput, error) {
	var lastErr error

	for attempt := 0; attempt <= i.opts.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		out, err := i.client.Query(ctx, input)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return nil, fmt.Errorf("query error: %w", err)
		}

		// Don't sleep after last attempt
		if attempt < i.opts.MaxRetries {
			backoff := time.Duration(attempt+1) * i.opts.RetryBackoff
			logging.L().Debug("retrying ddb query", zap.Int("attempt", attempt+1), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("query failed after %d retries: %w", i.opts.MaxRetries, lastErr)
}

// isRetryableError determines if a DynamoDB error is retryable
func isRetryableError(err error) bool {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		internal   *types.InternalServerError
	)
	if stderrors.As(err, &throughput) || stderrors.As(err, &limit) || stderrors.As(err, &internal) {
		return true
	}

	// Check for AWS SDK retryable errors
	var retryable interface{ IsRetryable() bool }
	if stderrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}
