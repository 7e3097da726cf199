/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package datastore defines the engine abstraction behind embedstore.

An Engine opens an Instance for a Configuration. An Instance hands out one
Collection per model, and DataStore[T] is the typed view of a Collection:

	inst, err := sqlite.NewEngine().Open(ctx, datastore.NewConfiguration("app.db",
	    datastore.WithSchemaVersion(2),
	    datastore.WithDeleteIfMigrationNeeded(),
	))
	store, err := datastore.For[Track](ctx, inst)
	tracks, err := store.Find(ctx, query.New().EqualTo("artist", "New Order"))

Implementations:
  - sqlite: bun over the pure-Go SQLite driver (default engine)
  - ddb: DynamoDB single-table implementation
  - mock: in-memory implementation with error injection for tests

Every engine applies the same schema policy when opening a database, see
ApplySchemaPolicy.
*/
package datastore
