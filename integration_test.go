//go:build integration
// +build integration

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore_test

import (
	"context"
	stderrors "errors"
	"log"
	"os"
	"testing"

	"github.com/joho/godotenv"

	"github.com/suparena/embedstore"
	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/datastore/ddb"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/testutil"
)

// IntegrationPlayer is stored in the DynamoDB test table.
type IntegrationPlayer struct {
	ID     int64  `bun:"id,pk,autoincrement"`
	Handle string `bun:"handle"`
	Rating int64  `bun:"rating"`
	Club   *string
}

// IntegrationEvent has no primary key.
type IntegrationEvent struct {
	Kind   string `bun:"kind"`
	Player int64  `bun:"player"`
}

func registerDynamoDB(t *testing.T) {
	t.Helper()
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, proceeding with environment variables")
	}
	table := os.Getenv("AWS_DDB_TABLE")
	if table == "" {
		t.Skip("AWS_DDB_TABLE not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := ddb.NewDynamoDBClient(ctx, ddb.ClientConfig{
		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
		SecretKey: os.Getenv("AWS_SECRET_KEY"),
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("AWS_DDB_ENDPOINT"),
	})
	if err != nil {
		t.Fatalf("failed to create DynamoDB client: %v", err)
	}
	cfg := datastore.NewConfiguration(table,
		datastore.WithEngine(ddb.NewEngine(client, ddb.WithCreateTable())),
		datastore.WithModels(IntegrationPlayer{}, IntegrationEvent{}))
	embedstore.Register[IntegrationPlayer](cfg)
	embedstore.Register[IntegrationEvent](cfg)
	t.Cleanup(func() {
		_ = embedstore.DeleteAll[IntegrationPlayer](ctx)
		_ = embedstore.DeleteAll[IntegrationEvent](ctx)
		if err := embedstore.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})

	if err := embedstore.DeleteAll[IntegrationPlayer](ctx); err != nil {
		t.Fatalf("failed to clear players: %v", err)
	}
	if err := embedstore.DeleteAll[IntegrationEvent](ctx); err != nil {
		t.Fatalf("failed to clear events: %v", err)
	}
}

func TestIntegrationHelpers(t *testing.T) {
	registerDynamoDB(t)
	ctx := context.Background()

	players := []IntegrationPlayer{
		{Handle: "alice", Rating: 1500},
		{Handle: "bob", Rating: 1320},
		{Handle: "carol", Rating: 1710},
	}
	if err := embedstore.SaveAll(ctx, players); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	if players[0].ID != 1 || players[2].ID != 3 {
		t.Fatalf("Unexpected keys: %d, %d", players[0].ID, players[2].ID)
	}

	top, err := embedstore.QuerySorted[IntegrationPlayer](ctx, query.New().GreaterThan("rating", 1400),
		query.SortField{Field: "rating", Order: query.Descending})
	if err != nil {
		t.Fatalf("QuerySorted failed: %v", err)
	}
	if len(top) != 2 || top[0].Handle != "carol" || top[1].Handle != "alice" {
		t.Fatalf("Unexpected order: %+v", top)
	}

	found, err := embedstore.QueryAndUpdate(ctx, query.New().EqualTo("handle", "bob"), func(p *IntegrationPlayer) {
		p.Rating = 1400
	})
	if err != nil || !found {
		t.Fatalf("QueryAndUpdate failed: found=%v err=%v", found, err)
	}

	if err := embedstore.Save(ctx, &IntegrationEvent{Kind: "adjusted", Player: 2}); err != nil {
		t.Fatalf("Save event failed: %v", err)
	}
	if err := embedstore.CreateOrUpdate(ctx, &IntegrationEvent{Kind: "x"}); !stderrors.Is(err, errors.ErrPrimaryKeyRequired) {
		t.Fatalf("Expected ErrPrimaryKeyRequired, got: %v", err)
	}

	var count int64
	if err := embedstore.QueryAllAsync(ctx, func(all []IntegrationPlayer, err error) {
		if err == nil {
			count = int64(len(all))
		}
	}); err != nil {
		t.Fatalf("QueryAllAsync failed: %v", err)
	}
	testutil.WaitExecutorIdle(t, embedstore.AsyncExecutor())
	if count != 3 {
		t.Fatalf("Expected 3 players, got %d", count)
	}

	n, err := embedstore.Delete[IntegrationPlayer](ctx, query.New().LessThan("rating", 1450))
	if err != nil || n != 1 {
		t.Fatalf("Delete failed: n=%d err=%v", n, err)
	}
}
