/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/logging"
	"github.com/suparena/embedstore/schema"
	"go.uber.org/zap"
)

const (
	metaPK        = "META#schema"
	metaSK        = "version"
	attrVersion   = "Version"
	attrModels    = "Models"
	tableWaitTime = 2 * time.Minute
)

// Options configures the engine
type Options struct {
	MaxRetries   int           // Retry attempts for transient errors (default: 3)
	RetryBackoff time.Duration // Backoff between retries, multiplied by the attempt (default: 1s)
	PageSize     int32         // Items per DynamoDB page (default: 100)
	CreateTable  bool          // Create the table when it does not exist
}

// Option is a functional option for configuring the engine
type Option func(*Options)

// DefaultOptions returns default engine options
func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		RetryBackoff: time.Second,
		PageSize:     100,
	}
}

// WithMaxRetries sets the maximum retry attempts
func WithMaxRetries(retries int) Option {
	return func(opts *Options) {
		opts.MaxRetries = retries
	}
}

// WithRetryBackoff sets the retry backoff duration
func WithRetryBackoff(backoff time.Duration) Option {
	return func(opts *Options) {
		opts.RetryBackoff = backoff
	}
}

// WithPageSize sets the DynamoDB page size
func WithPageSize(size int32) Option {
	return func(opts *Options) {
		opts.PageSize = size
	}
}

// WithCreateTable creates missing tables on open
func WithCreateTable() Option {
	return func(opts *Options) {
		opts.CreateTable = true
	}
}

// Engine stores every model of a configuration in one DynamoDB table named
// after the configuration.
type Engine struct {
	client API
	opts   Options
}

// NewEngine constructs an engine on top of client.
func NewEngine(client API, opts ...Option) *Engine {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{client: client, opts: o}
}

func (e *Engine) Name() string {
	return "dynamodb"
}

func (e *Engine) Open(ctx context.Context, cfg *datastore.Configuration) (datastore.Instance, error) {
	if cfg.InMemory {
		return nil, errors.NewValidationError("InMemory", "the DynamoDB engine has no in-memory mode")
	}
	if e.opts.CreateTable && !cfg.Inspect {
		if err := e.ensureTable(ctx, cfg.Name); err != nil {
			return nil, err
		}
	}

	inst := &Instance{
		client: e.client,
		opts:   e.opts,
		cfg:    cfg,
		closed: new(atomic.Bool),
		known:  make(map[string]bool),
	}
	if err := datastore.ApplySchemaPolicy(ctx, inst, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *Engine) ensureTable(ctx context.Context, table string) error {
	_, err := e.client.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var nf *types.ResourceNotFoundException
	if !stderrors.As(err, &nf) {
		return fmt.Errorf("describe table %s: %w", table, err)
	}

	logging.L().Info("creating DynamoDB table", zap.String("table", table))
	_, err = e.client.CreateTable(ctx, &sdk.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSK), KeyType: types.KeyTypeRange},
		},
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	waiter := sdk.NewTableExistsWaiter(e.client)
	if err := waiter.Wait(ctx, &sdk.DescribeTableInput{TableName: aws.String(table)}, tableWaitTime); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}

// Instance is one DynamoDB table opened for a configuration.
type Instance struct {
	client API
	opts   Options
	cfg    *datastore.Configuration
	closed *atomic.Bool

	mu    sync.Mutex
	known map[string]bool
}

func (i *Instance) Configuration() *datastore.Configuration {
	return i.cfg
}

func (i *Instance) Collection(ctx context.Context, m *schema.Model) (datastore.Collection, error) {
	if i.closed.Load() {
		return nil, errors.ErrClosed
	}
	if err := i.cfg.CheckModel(m); err != nil {
		return nil, err
	}
	if err := checkModel(m); err != nil {
		return nil, err
	}
	if !i.cfg.Inspect {
		if err := i.EnsureTables(ctx, []*schema.Model{m}); err != nil {
			return nil, err
		}
	}
	return &Collection{inst: i, model: m}, nil
}

// RunInTx runs fn directly: DynamoDB has no interactive transactions, so
// writes made by fn are not rolled back when it fails.
func (i *Instance) RunInTx(ctx context.Context, fn func(ctx context.Context, tx datastore.Instance) error) error {
	if i.closed.Load() {
		return errors.ErrClosed
	}
	logging.L().Debug("ddb transaction runs without atomicity", zap.String("table", i.cfg.Name))
	return fn(ctx, i)
}

func (i *Instance) SchemaVersion(ctx context.Context) (uint64, error) {
	v, _, err := i.StoredVersion(ctx)
	return v, err
}

func (i *Instance) Close() error {
	i.closed.Store(true)
	return nil
}

func (i *Instance) metaItem(ctx context.Context) (map[string]types.AttributeValue, error) {
	out, err := i.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(i.cfg.Name),
		Key:            keyOf(metaPK, metaSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem error: %w", err)
	}
	return out.Item, nil
}

func (i *Instance) putMeta(ctx context.Context, item map[string]types.AttributeValue) error {
	item[attrPK] = &types.AttributeValueMemberS{Value: metaPK}
	item[attrSK] = &types.AttributeValueMemberS{Value: metaSK}
	_, err := i.client.PutItem(ctx, &sdk.PutItemInput{
		TableName: aws.String(i.cfg.Name),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem failed: %w", err)
	}
	return nil
}

func (i *Instance) StoredVersion(ctx context.Context) (uint64, bool, error) {
	item, err := i.metaItem(ctx)
	if err != nil {
		return 0, false, err
	}
	n, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(n.Value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt schema version %q: %w", n.Value, err)
	}
	return v, true, nil
}

func (i *Instance) SetStoredVersion(ctx context.Context, version uint64) error {
	item, err := i.metaItem(ctx)
	if err != nil {
		return err
	}
	if item == nil {
		item = make(map[string]types.AttributeValue)
	}
	item[attrVersion] = &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)}
	return i.putMeta(ctx, item)
}

// EnsureTables records the model tables in the meta item so DropAll can find
// their partitions later.
func (i *Instance) EnsureTables(ctx context.Context, models []*schema.Model) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var missing []string
	for _, m := range models {
		if !i.known[m.Table] {
			missing = append(missing, m.Table)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	item, err := i.metaItem(ctx)
	if err != nil {
		return err
	}
	if item == nil {
		item = make(map[string]types.AttributeValue)
	}
	tables := storedTables(item)
	changed := false
	for _, t := range missing {
		if !tables[t] {
			tables[t] = true
			changed = true
		}
	}
	if changed {
		names := make([]string, 0, len(tables))
		for t := range tables {
			names = append(names, t)
		}
		sort.Strings(names)
		item[attrModels] = &types.AttributeValueMemberSS{Value: names}
		if err := i.putMeta(ctx, item); err != nil {
			return err
		}
	}
	for _, t := range missing {
		i.known[t] = true
	}
	return nil
}

func storedTables(item map[string]types.AttributeValue) map[string]bool {
	tables := make(map[string]bool)
	if ss, ok := item[attrModels].(*types.AttributeValueMemberSS); ok {
		for _, t := range ss.Value {
			tables[t] = true
		}
	}
	return tables
}

// Tables returns the model tables recorded in the meta item, sorted.
func (i *Instance) Tables(ctx context.Context) ([]string, error) {
	item, err := i.metaItem(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for t := range storedTables(item) {
		names = append(names, t)
	}
	sort.Strings(names)
	return names, nil
}

// DropAll deletes the items of every recorded model and the meta item.
func (i *Instance) DropAll(ctx context.Context) error {
	tables, err := i.Tables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		var keys []map[string]types.AttributeValue
		err := i.queryPartition(ctx, partitionQuery{pk: modelPrefix + t, projection: []string{attrPK, attrSK}},
			func(out *sdk.QueryOutput) error {
				for _, item := range out.Items {
					keys = append(keys, map[string]types.AttributeValue{attrPK: item[attrPK], attrSK: item[attrSK]})
				}
				return nil
			})
		if err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
		if err := i.batchWrite(ctx, deleteRequests(keys)); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}

	_, err = i.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName: aws.String(i.cfg.Name),
		Key:       keyOf(metaPK, metaSK),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item in DynamoDB: %w", err)
	}
	i.mu.Lock()
	i.known = make(map[string]bool)
	i.mu.Unlock()
	return nil
}

var (
	_ datastore.Engine        = (*Engine)(nil)
	_ datastore.Instance      = (*Instance)(nil)
	_ datastore.SchemaManager = (*Instance)(nil)
)
