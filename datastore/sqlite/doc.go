/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package sqlite is the default datastore.Engine. It stores each model in one
table through github.com/uptrace/bun, on top of the pure-Go modernc.org/sqlite
driver, so no cgo toolchain is needed.

Models use bun struct tags; tables are created on demand with
CREATE TABLE IF NOT EXISTS. The schema version lives in the embedstore_meta
table. Without sort fields, results come back in rowid order.

File databases run in WAL mode with a busy timeout and immediate
transactions. In-memory databases use a single connection; their contents
disappear when the instance is closed.
*/
package sqlite
