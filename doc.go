/*
Package embedstore provides convenience helpers over an embedded database
engine: typed queries, writes, transactions and change observation for plain
Go structs, plus a process-wide registry mapping model types to the database
configuration that stores them.

Models are structs tagged the way bun tags them:

	type Rating struct {
	    ID     int64  `bun:"id,pk,autoincrement"`
	    Player string `bun:"player"`
	    Score  float64
	}

Configure the default database once, optionally routing some models to
other databases:

	embedstore.Init(datastore.NewConfiguration("app.db", datastore.WithSchemaVersion(2)))
	embedstore.Register[AuditEntry](datastore.NewConfiguration("audit.db"))
	defer embedstore.Close()

Then use the helpers:

	r := Rating{Player: "alice", Score: 1500}
	err := embedstore.Save(ctx, &r) // r.ID is assigned

	top, err := embedstore.QuerySorted[Rating](ctx,
	    query.New().GreaterThan("score", 1400),
	    query.SortField{Field: "score", Order: query.Descending})

	first, err := embedstore.QueryFirst[Rating](ctx, query.New().EqualTo("player", "bob"))

Asynchronous helpers run on AsyncExecutor; tests synchronise with it through
testutil.WaitExecutorIdle. QueryAsFlow and friends re-emit their results
after every write committed through this package.

SQLite (bun over modernc.org/sqlite) is the default engine. The DynamoDB and
in-memory mock engines live under datastore/.
*/
package embedstore
