/*
Package ddb provides a DynamoDB implementation of datastore.Engine.

The engine uses a single-table design: the configuration name is the table
name and every model lives in its own partition:

	PK         = "MODEL#<table>"   // e.g. "MODEL#ratings"
	SK         = primary key value // integers zero padded to 20 digits
	EntityType = Go type name      // injected on every put

Models without a primary key get a time ordered UUID as SK. The schema
version and the list of known model tables are stored in the item
PK="META#schema", SK="version".

Query conditions are compiled to a FilterExpression when DynamoDB can
express them; every result is re-checked in memory, so operators DynamoDB
lacks (ENDS_WITH) still work. Queries are paginated and transient errors are
retried with a linear backoff:

	engine := ddb.NewEngine(client,
	    ddb.WithMaxRetries(3),
	    ddb.WithRetryBackoff(500*time.Millisecond),
	    ddb.WithPageSize(100),
	)

Inserts are conditional puts grouped in transactions of up to 100 items.
RunInTx runs its callback without atomicity.
*/
package ddb
