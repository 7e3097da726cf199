/*
Package schema derives model metadata from Go struct types.

A model is any struct with at most one primary key field, described with
bun tags:

	type Dog struct {
	    ID   int64  `bun:"id,pk,autoincrement"`
	    Name string `bun:"name"`
	    Age  int
	    Note string `bun:"-"`
	}

Struct types are read by bun's SQLite dialect, so names and keys always
match the tables the SQLite engine creates:
  - the column name is the tag name, or the snake_case field name ("UserID" → "user_id")
  - the table name is the pluralised snake_case type name ("Dog" → "dogs"), or the
    `table:` option on an embedded bun.BaseModel
  - `pk` marks the primary key; without one a field named id or uuid is used.
    `autoincrement` lets the extension helpers assign it
  - embedded structs without a tag are flattened

Models are parsed once and cached per reflect.Type; the cache is safe for
concurrent use.
*/
package schema
