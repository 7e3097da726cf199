/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package query provides an engine-independent filter builder.

A Query is a list of AND-combined conditions with optional sort fields and a
limit:

	q := query.New().
	    EqualTo("owner", "alice").
	    GreaterThan("score", 10).
	    Or(query.New().IsNull("deleted_at"), query.New().EqualTo("pinned", true)).
	    Sort("score", query.Descending).
	    Limit(20)

Field names may be either column names or Go field names. Engines translate
queries into their native filter language; Match and SortSlice evaluate the
same semantics in memory for engines (or operators) without native support.
*/
package query
